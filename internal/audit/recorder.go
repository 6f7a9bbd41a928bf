package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"socsync/internal/logger"
	"socsync/internal/metrics"
)

// RecorderConfig configures batching.
type RecorderConfig struct {
	Buffer        int
	FlushInterval time.Duration
	RetryDelay    time.Duration
	MaxRetries    int
}

// Recorder buffers events and flushes them to every sink in batches.
type Recorder struct {
	sinks         []Sink
	in            chan Event
	flushInterval time.Duration
	retryDelay    time.Duration
	maxRetries    int

	closeOnce sync.Once
}

// NewRecorder creates a recorder writing to sinks.
func NewRecorder(cfg RecorderConfig, sinks ...Sink) *Recorder {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Recorder{
		sinks:         sinks,
		in:            make(chan Event, cfg.Buffer),
		flushInterval: cfg.FlushInterval,
		retryDelay:    cfg.RetryDelay,
		maxRetries:    cfg.MaxRetries,
	}
}

// Record enqueues ev. When the buffer is full the event is dropped and
// counted; callers are never blocked.
func (r *Recorder) Record(ev Event) {
	select {
	case r.in <- ev:
	default:
		metrics.RecordAuditDrop()
		logger.Warnf("Audit buffer full, dropped %s event for %s", ev.Kind, ev.ResourceID)
	}
}

// Run flushes batches until ctx ends, then drains what is buffered.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	var batch []Event
	for {
		select {
		case <-ctx.Done():
			batch = r.drain(batch)
			r.flush(context.Background(), batch, 1)
			return ctx.Err()
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(ctx, batch, r.maxRetries)
				batch = nil
			}
		case ev := <-r.in:
			batch = append(batch, ev)
		}
	}
}

// Close closes every sink.
func (r *Recorder) Close() error {
	var errs []error
	r.closeOnce.Do(func() {
		for _, s := range r.sinks {
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

func (r *Recorder) drain(batch []Event) []Event {
	for {
		select {
		case ev := <-r.in:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
}

// flush writes batch to each sink, retrying a failing sink up to attempts
// times. A sink that keeps failing loses the batch.
func (r *Recorder) flush(ctx context.Context, batch []Event, attempts int) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range r.sinks {
		for try := 1; ; try++ {
			err := sink.WriteEvents(batch)
			if err == nil {
				break
			}
			logger.Errorf("Failed to write audit events: %v", err)
			if try >= attempts {
				for range batch {
					metrics.RecordAuditDrop()
				}
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.retryDelay):
			}
		}
	}
}
