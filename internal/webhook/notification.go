package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

var ErrInvalidNotification = errors.New("invalid notification")

const TypePayment = "payment"

// Notification is the part of a gateway notification the service needs.
type Notification struct {
	Type   string
	DataID string
}

type rawNotification struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// ParseNotification reads type and data id from the JSON body, falling back
// to the query string (older IPN style: ?topic=payment&id=123).
func ParseNotification(body []byte, q url.Values) (Notification, error) {
	var raw rawNotification
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return Notification{}, ErrInvalidNotification
		}
	}

	n := Notification{Type: firstNonEmpty(raw.Type, raw.Topic, q.Get("type"), q.Get("topic"))}
	if n.Type == "" && strings.HasPrefix(raw.Action, TypePayment+".") {
		n.Type = TypePayment
	}
	n.DataID = firstNonEmpty(rawID(raw.Data.ID), q.Get("data.id"), q.Get("id"))
	return n, nil
}

func rawID(b json.RawMessage) string {
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(b, &s) == nil {
		return s
	}
	return string(b)
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
