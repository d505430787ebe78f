package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/daluzconsciente/tienda-api/internal/webhook"
)

const maxWebhookBody = 1 << 20

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := webhook.ParseNotification(body, r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	out, err := s.Webhook.Handle(ctx, n, webhook.Signature{
		Header:    r.Header.Get("x-signature"),
		RequestID: r.Header.Get("x-request-id"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	slog.Debug("webhook handled", "type", n.Type, "data_id", n.DataID, "outcome", out)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
