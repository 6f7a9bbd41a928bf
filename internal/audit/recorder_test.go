package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu       sync.Mutex
	events   []Event
	failures int
	closed   bool
}

func (s *memorySink) WriteEvents(events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestRecorderFlushesOnInterval(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(RecorderConfig{FlushInterval: 10 * time.Millisecond}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	r.Record(NewEvent(KindPermissionDenied, "audrey", "AUDITOR", "delete", "a1", nil))
	r.Record(NewEvent(KindMutationConfirmed, "ana", "ANALYST", "acknowledge", "a2", nil))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	got := sink.snapshot()
	assert.Equal(t, KindPermissionDenied, got[0].Kind)
	assert.Equal(t, "a2", got[1].ResourceID)
	assert.NotEmpty(t, got[0].ID)
}

func TestRecorderRetriesFailingSink(t *testing.T) {
	sink := &memorySink{failures: 2}
	r := NewRecorder(RecorderConfig{FlushInterval: 5 * time.Millisecond, RetryDelay: time.Millisecond, MaxRetries: 5}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	r.Record(NewEvent(KindMutationRolledBack, "ana", "ANALYST", "escalate", "a1", map[string]interface{}{"reason": "timeout"}))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRecorderDrainsOnShutdown(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(RecorderConfig{FlushInterval: time.Hour}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()

	for i := 0; i < 3; i++ {
		r.Record(NewEvent(KindMutationConfirmed, "ana", "ANALYST", "resolve", "a1", nil))
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	assert.Len(t, sink.snapshot(), 3)
	require.NoError(t, r.Close())
	assert.True(t, sink.closed)
}

func TestRecordNeverBlocks(t *testing.T) {
	r := NewRecorder(RecorderConfig{Buffer: 1}, &memorySink{})
	r.Record(NewEvent(KindPermissionDenied, "x", "VIEWER", "delete", "a1", nil))
	r.Record(NewEvent(KindPermissionDenied, "x", "VIEWER", "delete", "a2", nil))
	assert.Len(t, r.in, 1)
}

func TestFileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "events.jsonl")

	for i := 0; i < 2; i++ {
		sink, err := NewFileSink(FileSinkConfig{Path: path})
		require.NoError(t, err)
		require.NoError(t, sink.WriteEvents([]Event{NewEvent(KindPermissionDenied, "audrey", "AUDITOR", "delete", "a1", nil)}))
		require.NoError(t, sink.Close())
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		assert.Equal(t, "audrey", ev.Actor)
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestFileSinkRotatesBySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink, err := NewFileSink(FileSinkConfig{Path: path, MaxBytes: 1})
	require.NoError(t, err)
	clock := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	sink.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for _, id := range []string{"a1", "a2", "a3"} {
		batch := []Event{
			NewEvent(KindMutationConfirmed, "sam", "SENIOR_ANALYST", "release", id, nil),
			NewEvent(KindMutationConfirmed, "sam", "SENIOR_ANALYST", "resolve", id, nil),
		}
		require.NoError(t, sink.WriteEvents(batch))
	}
	require.NoError(t, sink.Close())
	assert.Error(t, sink.WriteEvents([]Event{NewEvent(KindPermissionDenied, "x", "VIEWER", "delete", "a1", nil)}))

	rotated, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, rotated, 2)

	for _, p := range append(rotated, path) {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		assert.Len(t, lines, 2, "batches are never split across files: %s", p)
	}
}

func TestHTTPSinkPostsBatch(t *testing.T) {
	var got []Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token", r.Header.Get("X-Audit-Token"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink, err := NewHTTPSink(HTTPConfig{URL: server.URL, Headers: map[string]string{"X-Audit-Token": "token"}})
	require.NoError(t, err)
	require.NoError(t, sink.WriteEvents([]Event{NewEvent(KindMutationConfirmed, "ana", "ANALYST", "quarantine", "a9", nil)}))
	require.Len(t, got, 1)
	assert.Equal(t, "a9", got[0].ResourceID)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	sink, err = NewHTTPSink(HTTPConfig{URL: failing.URL})
	require.NoError(t, err)
	assert.Error(t, sink.WriteEvents([]Event{NewEvent(KindMutationConfirmed, "ana", "ANALYST", "quarantine", "a9", nil)}))
}

func TestConsoleSink(t *testing.T) {
	sink := NewConsoleSink(zerolog.New(zerolog.NewTestWriter(t)))
	assert.NoError(t, sink.WriteEvents([]Event{NewEvent(KindPermissionDenied, "v", "VIEWER", "release", "a1", map[string]interface{}{"missing": "RELEASE_MESSAGE"})}))
	assert.NoError(t, sink.Close())
}
