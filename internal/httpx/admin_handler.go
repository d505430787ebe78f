package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/daluzconsciente/tienda-api/internal/admin"
	"github.com/daluzconsciente/tienda-api/internal/authx"
	"github.com/daluzconsciente/tienda-api/internal/orders"
	"github.com/go-chi/chi/v5"
)

type AdminService interface {
	List(ctx context.Context, status string, limit, offset int) ([]orders.Order, error)
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	Update(ctx context.Context, adminID, orderID string, p orders.Patch) (*orders.Order, error)
	Cancel(ctx context.Context, adminID, orderID string) (*orders.Order, error)
	Notify(ctx context.Context, adminID, orderID string, req admin.NotifyRequest) error
}

type orderResp struct {
	Success bool          `json:"success"`
	Order   *orders.Order `json:"order"`
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", admin.ErrInvalidFilter, key)
	}
	return n, nil
}

func (s *Server) adminList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := s.Admin.List(ctx, r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, ordersResp{Success: true, Orders: list})
}

func (s *Server) adminGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := s.Admin.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Success: true, Order: o})
}

func (s *Server) adminPatch(w http.ResponseWriter, r *http.Request) {
	p, err := admin.DecodePatch(r.Body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, _ := authx.FromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := s.Admin.Update(ctx, id.UserID, chi.URLParam(r, "id"), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Success: true, Order: o})
}

func (s *Server) adminCancel(w http.ResponseWriter, r *http.Request) {
	id, _ := authx.FromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := s.Admin.Cancel(ctx, id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Success: true, Order: o})
}

func (s *Server) adminNotify(w http.ResponseWriter, r *http.Request) {
	var req admin.NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, errInvalidJSON)
		return
	}
	id, _ := authx.FromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := s.Admin.Notify(ctx, id.UserID, chi.URLParam(r, "id"), req); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
