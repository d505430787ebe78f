package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/daluzconsciente/tienda-api/internal/authx"
	"github.com/daluzconsciente/tienda-api/internal/checkout"
)

func (s *Server) createCheckout(w http.ResponseWriter, r *http.Request) {
	id, _ := authx.FromContext(r.Context())

	var req checkout.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, errInvalidJSON)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := s.Checkout.Create(ctx, id.UserID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) checkoutStatus(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing order_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	caller, _ := authx.FromContext(r.Context())
	v, err := s.Checkout.Status(ctx, orderID, caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
