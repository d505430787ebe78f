// Package eventstest provides an in-memory events.Publisher for tests.
package eventstest

import (
	"context"
	"sync"

	"github.com/daluzconsciente/tienda-api/internal/events"
)

type Published struct {
	Topic    string
	Envelope events.Envelope
}

type Recorder struct {
	mu   sync.Mutex
	msgs []Published
	Err  error
}

func (r *Recorder) Publish(_ context.Context, topic string, env events.Envelope) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, Published{Topic: topic, Envelope: env})
	return nil
}

func (r *Recorder) Messages() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.msgs...)
}

// Topics lists published topics in order.
func (r *Recorder) Topics() []string {
	var out []string
	for _, m := range r.Messages() {
		out = append(out, m.Topic)
	}
	return out
}
