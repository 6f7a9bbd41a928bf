package connection

import (
	"sync"

	"github.com/rs/zerolog"

	"socsync/pkg/models"
)

// Handler receives a decoded push message.
type Handler func(msg *models.Message)

type subscription struct {
	id      int
	msgType models.MessageType // empty for subscribeAll
	handler Handler
}

// registry keeps handlers in registration order.
type registry struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID int
	log    zerolog.Logger
}

func (r *registry) add(msgType models.MessageType, h Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscription{id: id, msgType: msgType, handler: h})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, s := range r.subs {
				if s.id == id {
					r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// dispatch calls every matching handler. A panicking handler is logged and
// does not stop the others.
func (r *registry) dispatch(msg *models.Message) {
	r.mu.RLock()
	subs := append([]subscription(nil), r.subs...)
	r.mu.RUnlock()

	for _, s := range subs {
		if s.msgType != "" && s.msgType != msg.Type {
			continue
		}
		r.invoke(s, msg)
	}
}

func (r *registry) invoke(s subscription, msg *models.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Interface("panic", rec).
				Str("type", string(msg.Type)).
				Str("message_id", msg.ID).
				Msg("Push handler panicked")
		}
	}()
	s.handler(msg)
}
