package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/daluzconsciente/tienda-api/internal/admin"
	"github.com/daluzconsciente/tienda-api/internal/checkout"
	"github.com/daluzconsciente/tienda-api/internal/orders"
	"github.com/daluzconsciente/tienda-api/internal/webhook"
	"github.com/go-chi/chi/v5/middleware"
)

var errInvalidJSON = errors.New("invalid json")

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

var badRequest = []error{
	errInvalidJSON,
	checkout.ErrEmptyCart,
	checkout.ErrInvalidAddress,
	checkout.ErrMissingCustomer,
	orders.ErrInvalidQuantity,
	orders.ErrProductUnavailable,
	admin.ErrInvalidPatch,
	admin.ErrInvalidFilter,
	admin.ErrInvalidNotification,
	webhook.ErrInvalidNotification,
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, webhook.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, admin.ErrInvalidTransition):
		return http.StatusConflict
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// fail writes err as {error, details?}. Client errors carry their message;
// server errors are logged and only expose details outside production.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := map[string]string{"error": err.Error()}
	if code >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
		body["error"] = "internal error"
		if !s.Production {
			body["details"] = err.Error()
		}
	}
	if code == http.StatusUnauthorized {
		body["error"] = "unauthorized"
	}
	writeJSON(w, code, body)
}
