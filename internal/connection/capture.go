package connection

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Direction tells whether a frame was read or written.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Frame is one raw push frame as seen on the wire.
type Frame struct {
	Direction Direction
	Data      []byte
	At        time.Time
}

type capturedFrame struct {
	Timestamp time.Time       `json:"ts"`
	Direction Direction       `json:"dir"`
	Frame     json.RawMessage `json:"frame,omitempty"`
	Raw       string          `json:"raw,omitempty"`
}

// FrameCapture appends frames to a JSONL file so a session can be replayed
// against the coordinator later.
type FrameCapture struct {
	mu        sync.Mutex
	f         *os.File
	w         *bufio.Writer
	enc       *json.Encoder
	pending   int
	batchSize int
	err       error
}

// NewFrameCapture opens path for appending. batchSize frames are buffered
// before a write reaches the file.
func NewFrameCapture(path string, batchSize int) (*FrameCapture, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create capture directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	w := bufio.NewWriter(f)
	return &FrameCapture{f: f, w: w, enc: json.NewEncoder(w), batchSize: batchSize}, nil
}

// Record writes one frame. It matches the Manager.OnFrame signature.
func (c *FrameCapture) Record(fr Frame) {
	rec := capturedFrame{Timestamp: fr.At.UTC(), Direction: fr.Direction}
	if json.Valid(fr.Data) {
		rec.Frame = append(json.RawMessage(nil), fr.Data...)
	} else {
		rec.Raw = string(fr.Data)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return
	}
	if err := c.enc.Encode(rec); err != nil {
		c.err = err
		return
	}
	c.pending++
	if c.pending >= c.batchSize {
		c.flushLocked()
	}
}

// Flush writes buffered frames to the file.
func (c *FrameCapture) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
	err := c.err
	c.err = nil
	return err
}

func (c *FrameCapture) flushLocked() {
	if c.f == nil || c.pending == 0 {
		return
	}
	if err := c.w.Flush(); err != nil {
		c.err = err
		return
	}
	c.pending = 0
}

// Run flushes every interval until ctx ends. Write failures are kept and
// reported by Close.
func (c *FrameCapture) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		}
	}
}

// Close flushes and closes the file.
func (c *FrameCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	c.flushLocked()
	err := c.f.Close()
	c.f = nil
	if c.err != nil {
		return c.err
	}
	return err
}
