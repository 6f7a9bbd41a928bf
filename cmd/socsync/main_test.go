package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socsync/config"
	"socsync/internal/alerts"
	"socsync/internal/backend"
	"socsync/internal/connection"
	"socsync/internal/permissions"
	"socsync/pkg/models"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &config.Config{}
	cfg.SocSync.Audit.Enabled = true
	cfg.SocSync.Push.MaxAttempts = 4
	applyDefaults(cfg)

	s := cfg.SocSync
	assert.Equal(t, "websocket", s.Push.Transport)
	assert.Equal(t, 4, s.Push.MaxAttempts)
	assert.Equal(t, time.Second, s.Push.ReconnectInterval)
	assert.Equal(t, 30*time.Second, s.Push.MaxReconnectDelay)
	assert.Equal(t, 30*time.Second, s.Sync.ResyncThreshold)
	assert.Equal(t, []string{"file"}, s.Audit.Outputs)
	assert.Equal(t, "info", s.Logging.Level)
}

func TestFindConfigFilePrefersArgument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("socsync: {}\n"), 0600))
	assert.Equal(t, path, findConfigFile(path))
}

func TestBuildTransport(t *testing.T) {
	ws, err := buildTransport(config.PushConfig{Transport: "websocket", WebSocket: config.WebSocketConfig{URL: "ws://127.0.0.1:1/ws"}})
	require.NoError(t, err)
	assert.IsType(t, &connection.WebsocketTransport{}, ws)

	rd, err := buildTransport(config.PushConfig{Transport: "Redis", Redis: config.RedisConfig{Key: "socsync:push"}})
	require.NoError(t, err)
	assert.IsType(t, &connection.RedisTransport{}, rd)

	_, err = buildTransport(config.PushConfig{Transport: "carrier-pigeon"})
	assert.Error(t, err)
	_, err = buildTransport(config.PushConfig{Transport: "websocket"})
	assert.Error(t, err, "websocket needs a url")
}

func TestBuildRecorder(t *testing.T) {
	rec, err := buildRecorder(config.AuditConfig{})
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = buildRecorder(config.AuditConfig{
		Enabled: true,
		Outputs: []string{"file", "console"},
		File:    config.AuditFileConfig{Path: filepath.Join(t.TempDir(), "audit", "events.jsonl")},
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NoError(t, rec.Close())

	_, err = buildRecorder(config.AuditConfig{Enabled: true, Outputs: []string{"syslog"}})
	assert.Error(t, err)
}

func TestPrintDecisions(t *testing.T) {
	var out bytes.Buffer
	user := &models.User{Role: models.RoleAuditor}
	denied := printDecisions(&out, permissions.DefaultTable(), user, []models.Action{models.ActionDelete, models.ActionEscalate})

	assert.Equal(t, 2, denied)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "delete")
	assert.Contains(t, lines[1], "DELETE_MESSAGE")

	out.Reset()
	denied = printDecisions(&out, permissions.DefaultTable(), &models.User{Role: models.RoleAdmin}, models.Actions)
	assert.Equal(t, 0, denied)
}

func TestCanCommandFailsOnDenial(t *testing.T) {
	cmd := newCanCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--role", "senior_analyst", "release", "delete"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
}

func TestTakeSnapshotSummarizesQueues(t *testing.T) {
	ts := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/alerts":
			_ = json.NewEncoder(w).Encode(models.Page[*models.Alert]{Items: []*models.Alert{
				{ID: "a1", RiskScore: 1.5, Status: models.StatusNew, UpdatedAt: ts},
				{ID: "a2", RiskScore: 9.2, RiskLevel: models.RiskCold, Status: models.StatusQuarantined, UpdatedAt: ts},
				{ID: "a3", RiskScore: 7.0, Status: models.StatusNew, UpdatedAt: ts},
			}})
		case "/incidents":
			_ = json.NewEncoder(w).Encode(models.Page[*models.Incident]{Items: []*models.Incident{{ID: "i1"}}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := backend.NewClient(backend.Config{BaseURL: server.URL})
	require.NoError(t, err)

	summary, list, err := takeSnapshot(context.Background(), client, backend.AlertFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Alerts)
	assert.Equal(t, 1, summary.Incidents)
	assert.Equal(t, 1, summary.Queues[alerts.QueueLogs])
	assert.Equal(t, 1, summary.Queues[alerts.QueueAlerts])
	assert.Equal(t, 1, summary.Queues[alerts.QueueQuarantine])
	assert.Equal(t, 2, summary.Statuses[models.StatusNew])

	require.Len(t, list, 3)
	assert.Equal(t, "a2", list[0].ID)
	assert.Equal(t, models.RiskHot, list[0].RiskLevel)

	path := filepath.Join(t.TempDir(), "out", "alerts.jsonl")
	require.NoError(t, writeJSONLines(path, list))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
}

func TestReadyzFollowsBaseline(t *testing.T) {
	ready := make(chan struct{})
	h := metricsHandler(ready)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	close(ready)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
