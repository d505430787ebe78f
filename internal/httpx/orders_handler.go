package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/daluzconsciente/tienda-api/internal/authx"
	"github.com/daluzconsciente/tienda-api/internal/orders"
)

type ordersResp struct {
	Success bool           `json:"success"`
	Orders  []orders.Order `json:"orders"`
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := authx.FromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := s.Orders.ListByUser(ctx, id.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, ordersResp{Success: true, Orders: list})
}
