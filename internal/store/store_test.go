package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socsync/internal/alerts"
	apperrors "socsync/internal/errors"
	"socsync/pkg/models"
)

var base = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

func alertAt(id string, score float64, ts time.Time) *models.Alert {
	return &models.Alert{
		ID:        id,
		RiskScore: score,
		Status:    models.StatusNew,
		Subject:   "Invoice " + id,
		Sender:    "billing@example.test",
		CreatedAt: base,
		UpdatedAt: ts,
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	once := NewAlerts()
	twice := NewAlerts()
	e := alertAt("a1", 5, base)

	_, err := once.Upsert(e)
	require.NoError(t, err)
	_, err = twice.Upsert(e)
	require.NoError(t, err)
	applied, err := twice.Upsert(e)
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, once.All(), twice.All())
}

func TestUpsertLastWriterWins(t *testing.T) {
	s := NewAlerts()
	newer := alertAt("a1", 8, base.Add(2*time.Minute))
	older := alertAt("a1", 2, base.Add(1*time.Minute))

	_, err := s.Upsert(newer)
	require.NoError(t, err)

	applied, err := s.Upsert(older)
	assert.False(t, applied)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStale))
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	got, ok := s.Get("a1")
	require.True(t, ok)
	assert.Equal(t, 8.0, got.RiskScore)
	assert.True(t, got.UpdatedAt.Equal(newer.UpdatedAt))
}

func TestUpsertRederivesRiskLevel(t *testing.T) {
	s := NewAlerts()
	in := alertAt("a1", 6.5, base)
	in.RiskLevel = models.RiskHot

	_, err := s.Upsert(in)
	require.NoError(t, err)
	got, _ := s.Get("a1")
	assert.Equal(t, models.RiskWarm, got.RiskLevel)
}

func TestRescoreMigratesQueues(t *testing.T) {
	s := NewAlerts()
	_, err := s.Upsert(alertAt("a1", 6.5, base))
	require.NoError(t, err)
	require.Len(t, AlertsInQueue(s, alerts.QueueAlerts), 1)
	require.Empty(t, AlertsInQueue(s, alerts.QueueQuarantine))

	_, err = s.Upsert(alertAt("a1", 7.5, base.Add(time.Second)))
	require.NoError(t, err)

	assert.Empty(t, AlertsInQueue(s, alerts.QueueAlerts))
	hot := AlertsInQueue(s, alerts.QueueQuarantine)
	require.Len(t, hot, 1)
	assert.Equal(t, models.RiskHot, hot[0].RiskLevel)
}

func TestRemoveClearsSelection(t *testing.T) {
	s := NewAlerts()
	s.Set([]*models.Alert{alertAt("a1", 1, base), alertAt("a2", 1, base)})
	require.True(t, s.Select("a1"))

	assert.True(t, s.Remove("a1"))
	assert.Equal(t, "", s.SelectedID())
	_, ok := s.Selected()
	assert.False(t, ok)
	assert.False(t, s.Remove("a1"))
	assert.False(t, s.Select("missing"))
}

func TestSetDropsDanglingSelection(t *testing.T) {
	s := NewAlerts()
	s.Set([]*models.Alert{alertAt("a1", 1, base)})
	require.True(t, s.Select("a1"))

	s.Set([]*models.Alert{alertAt("a2", 1, base)})
	assert.Equal(t, "", s.SelectedID())
	assert.Equal(t, 1, s.Len())
}

func TestReadsAreDefensiveCopies(t *testing.T) {
	s := NewAlerts()
	in := alertAt("a1", 4, base)
	in.Recipients = []string{"cfo@example.test"}
	_, err := s.Upsert(in)
	require.NoError(t, err)

	in.Recipients[0] = "mutated-input"
	got, _ := s.Get("a1")
	got.Recipients[0] = "mutated-read"
	got.Status = models.StatusResolved

	again, _ := s.Get("a1")
	assert.Equal(t, []string{"cfo@example.test"}, again.Recipients)
	assert.Equal(t, models.StatusNew, again.Status)
}

func TestAppendAuditIsCopyOnWrite(t *testing.T) {
	s := NewAlerts()
	_, err := s.Upsert(alertAt("a1", 4, base))
	require.NoError(t, err)

	before, _ := s.Get("a1")
	updated, ok := AppendAudit(s, "a1", models.AuditEntry{Timestamp: base, Actor: "ana", Action: "acknowledge"})
	require.True(t, ok)

	assert.Empty(t, before.AuditHistory)
	assert.Len(t, updated.AuditHistory, 1)
	after, _ := s.Get("a1")
	assert.Equal(t, "acknowledge", after.AuditHistory[0].Action)
}

func TestDerivedViews(t *testing.T) {
	s := NewAlerts()
	a := alertAt("a1", 1, base)
	b := alertAt("a2", 5, base)
	b.Status = models.StatusEscalated
	c := alertAt("a3", 9, base)
	c.Subject = "Wire transfer request"
	s.Set([]*models.Alert{a, b, c})

	assert.Len(t, AlertsByStatus(s, models.StatusEscalated), 1)
	assert.Len(t, AlertsByRiskLevel(s, models.RiskCold), 1)
	assert.Len(t, AlertsInQueue(s, alerts.QueueLogs), 1)
	found := SearchAlerts(s, "WIRE")
	require.Len(t, found, 1)
	assert.Equal(t, "a3", found[0].ID)
	assert.Len(t, SearchAlerts(s, ""), 3)
}

func TestSortAlerts(t *testing.T) {
	list := []*models.Alert{alertAt("b", 2, base), alertAt("a", 9, base), alertAt("c", 2, base.Add(time.Hour))}

	SortAlerts(list, SortByRisk)
	assert.Equal(t, []string{"a", "b", "c"}, ids(list))

	SortAlerts(list, SortByUpdated)
	assert.Equal(t, []string{"c", "a", "b"}, ids(list))
}

func TestWatchersSeeAppliedState(t *testing.T) {
	s := NewAlerts()
	var seen []Change
	var stateOK bool
	unsubscribe := s.Watch(func(c Change) {
		seen = append(seen, c)
		if c.Kind == ChangeUpsert {
			_, stateOK = s.Get(c.ID)
		}
	})

	_, err := s.Upsert(alertAt("a1", 1, base))
	require.NoError(t, err)
	s.Remove("a1")
	unsubscribe()
	_, err = s.Upsert(alertAt("a2", 1, base))
	require.NoError(t, err)

	assert.True(t, stateOK)
	assert.Equal(t, []Change{{Kind: ChangeUpsert, ID: "a1"}, {Kind: ChangeRemove, ID: "a1"}}, seen)
}

func TestIncidentsAreIndependentOfAlerts(t *testing.T) {
	alertsStore := NewAlerts()
	incidents := NewIncidents()
	_, err := alertsStore.Upsert(alertAt("a1", 1, base))
	require.NoError(t, err)
	_, err = incidents.Upsert(&models.Incident{ID: "i1", Status: models.IncidentOpen, RelatedAlerts: []string{"a1"}, UpdatedAt: base})
	require.NoError(t, err)

	alertsStore.Remove("a1")

	linked := IncidentsForAlert(incidents, "a1")
	require.Len(t, linked, 1)
	assert.Len(t, IncidentsByStatus(incidents, models.IncidentOpen), 1)

	inc, ok := AppendTimeline(incidents, "i1", models.AuditEntry{Actor: "ana", Action: "note"})
	require.True(t, ok)
	assert.Len(t, inc.Timeline, 1)
}

func TestUpsertRejectsMissingID(t *testing.T) {
	s := NewAlerts()
	_, err := s.Upsert(&models.Alert{})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func ids(list []*models.Alert) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return out
}
