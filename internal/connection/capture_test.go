package connection

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socsync/pkg/models"
)

func readCaptured(t *testing.T, path string) []capturedFrame {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []capturedFrame
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec capturedFrame
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestFrameCaptureBatchesAndCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture", "frames.jsonl")
	c, err := NewFrameCapture(path, 2)
	require.NoError(t, err)

	at := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	c.Record(Frame{Direction: Inbound, Data: []byte(`{"type":"alert:new"}`), At: at})
	assert.Empty(t, readCaptured(t, path), "first frame stays buffered")

	c.Record(Frame{Direction: Outbound, Data: []byte(`not json`), At: at})
	got := readCaptured(t, path)
	require.Len(t, got, 2)
	assert.Equal(t, Inbound, got[0].Direction)
	assert.JSONEq(t, `{"type":"alert:new"}`, string(got[0].Frame))
	assert.Equal(t, "not json", got[1].Raw)

	c.Record(Frame{Direction: Inbound, Data: []byte(`{}`), At: at})
	require.NoError(t, c.Close())
	assert.Len(t, readCaptured(t, path), 3)

	c.Record(Frame{Direction: Inbound, Data: []byte(`{}`), At: at})
	assert.NoError(t, c.Close())
}

func TestManagerReportsFrames(t *testing.T) {
	tr := &fakeTransport{}
	m, _ := startManager(t, testConfig(), tr)

	frames := make(chan Frame, 8)
	m.OnFrame(func(fr Frame) { frames <- fr })
	waitState(t, m, StateConnected)

	tr.conn(0).push(t, models.TypeAlertNew, map[string]string{"id": "a1"})
	fr := <-frames
	assert.Equal(t, Inbound, fr.Direction)
	assert.Contains(t, string(fr.Data), "a1")

	require.NoError(t, m.Send(textMessage(t, "hello")))
	fr = <-frames
	assert.Equal(t, Outbound, fr.Direction)
	assert.Contains(t, string(fr.Data), "hello")
	assert.NotContains(t, string(fr.Data), "tkn")
}
