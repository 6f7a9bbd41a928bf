package audit

import "github.com/rs/zerolog"

// ConsoleSink logs events through zerolog.
type ConsoleSink struct {
	log zerolog.Logger
}

// NewConsoleSink creates a sink writing to log.
func NewConsoleSink(log zerolog.Logger) *ConsoleSink {
	return &ConsoleSink{log: log}
}

func (s *ConsoleSink) WriteEvents(events []Event) error {
	for _, ev := range events {
		e := s.log.Info()
		if ev.Kind == KindPermissionDenied {
			e = s.log.Warn()
		}
		e.Str("audit_id", ev.ID).
			Str("kind", string(ev.Kind)).
			Str("actor", ev.Actor).
			Str("role", ev.Role).
			Str("action", ev.Action).
			Str("resource_id", ev.ResourceID).
			Fields(ev.Details).
			Time("at", ev.Timestamp).
			Msg("audit")
	}
	return nil
}

func (s *ConsoleSink) Close() error { return nil }
