package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/daluzconsciente/tienda-api/internal/postgres"
)

const (
	ActionOrderUpdated   = "order.updated"
	ActionOrderCancelled = "order.cancelled"
	ActionOrderNotified  = "order.notified"
)

type Activity struct {
	AdminID    string
	Action     string
	EntityType string
	EntityID   string
	Details    any
}

type ActivityLogger interface {
	Log(ctx context.Context, a Activity) error
}

type ActivityRepo struct{ DB postgres.DB }

func (r *ActivityRepo) Log(ctx context.Context, a Activity) error {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("encode activity details: %w", err)
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO admin_activity_log(admin_id, action, entity_type, entity_id, details)
		VALUES ($1,$2,$3,$4,$5)`,
		a.AdminID, a.Action, a.EntityType, a.EntityID, details)
	return err
}
