// Package syncer keeps the local alert and incident stores consistent with
// the backend. One goroutine owns every write: snapshot results, push
// deltas, connection changes, and mutation outcomes are all applied there.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"socsync/internal/alerts"
	"socsync/internal/audit"
	"socsync/internal/backend"
	"socsync/internal/connection"
	apperrors "socsync/internal/errors"
	"socsync/internal/metrics"
	"socsync/internal/permissions"
	"socsync/internal/store"
	"socsync/internal/transform/push"
	"socsync/pkg/models"
)

const (
	reasonBaseline = "baseline"
	reasonGap      = "gap"
	reasonRetry    = "retry"
)

// Backend is the REST surface the coordinator needs.
type Backend interface {
	FetchAlerts(ctx context.Context, filter backend.AlertFilter) (models.Page[*models.Alert], error)
	FetchIncidents(ctx context.Context) (models.Page[*models.Incident], error)
	Mutate(ctx context.Context, alertID string, action models.Action, payload models.MutationPayload) (*models.Alert, error)
}

// Channel is the push surface the coordinator needs. *connection.Manager
// implements it.
type Channel interface {
	SubscribeAll(h connection.Handler) func()
	OnConnectionChange(fn func(connection.StateChange)) func()
	Send(msg *models.Message) error
	Status() connection.Status
}

// Config tunes synchronization.
type Config struct {
	// ResyncThreshold is the disconnect length after which a fresh
	// snapshot is fetched on reconnect.
	ResyncThreshold time.Duration
	MutationTimeout time.Duration
	SnapshotTimeout time.Duration
	SnapshotLimit   int
	// ResyncInterval spaces consecutive snapshot fetches.
	ResyncInterval time.Duration
	RetryDelay     time.Duration
	// MaxBuffered bounds deltas held while a snapshot is in flight.
	MaxBuffered int
	AckDeltas   bool
}

func (c Config) withDefaults() Config {
	if c.ResyncThreshold <= 0 {
		c.ResyncThreshold = 30 * time.Second
	}
	if c.MutationTimeout <= 0 {
		c.MutationTimeout = 10 * time.Second
	}
	if c.SnapshotTimeout <= 0 {
		c.SnapshotTimeout = 30 * time.Second
	}
	if c.ResyncInterval <= 0 {
		c.ResyncInterval = 2 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.MaxBuffered <= 0 {
		c.MaxBuffered = 10000
	}
	return c
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Backend     Backend
	Channel     Channel
	Permissions *permissions.Table
	Auditor     audit.Auditor
}

// Entity names the store an Update refers to.
type Entity string

const (
	EntityAlert    Entity = "alert"
	EntityIncident Entity = "incident"
)

// Update is delivered to Subscribe callbacks after a store write.
type Update struct {
	Entity Entity
	Change store.Change
}

// Coordinator owns the local stores.
type Coordinator struct {
	cfg       Config
	backend   Backend
	channel   Channel
	perms     *permissions.Table
	auditor   audit.Auditor
	log       zerolog.Logger
	alerts    *store.Alerts
	incidents *store.Incidents
	limiter   *rate.Limiter

	inbox chan func()
	done  chan struct{}
	ready chan struct{}
	unsub []func()

	// runCtx is set by Run before the loop starts and read only on it.
	runCtx context.Context

	// Loop-owned state.
	baselined     bool
	syncing       bool
	resyncPending bool
	buffered      []*models.Message
	mutations     map[string]*mutation
}

// New creates a coordinator with empty stores and subscribes it to the
// channel. Events that arrive before Run are held in the inbox.
func New(cfg Config, deps Deps, log zerolog.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	if deps.Permissions == nil {
		deps.Permissions = permissions.DefaultTable()
	}
	if deps.Auditor == nil {
		deps.Auditor = audit.Discard{}
	}
	c := &Coordinator{
		cfg:       cfg,
		backend:   deps.Backend,
		channel:   deps.Channel,
		perms:     deps.Permissions,
		auditor:   deps.Auditor,
		log:       log,
		alerts:    store.NewAlerts(),
		incidents: store.NewIncidents(),
		limiter:   rate.NewLimiter(rate.Every(cfg.ResyncInterval), 1),
		inbox:     make(chan func(), 256),
		done:      make(chan struct{}),
		ready:     make(chan struct{}),
		mutations: make(map[string]*mutation),
	}
	if c.channel != nil {
		c.unsub = append(c.unsub,
			c.channel.SubscribeAll(func(msg *models.Message) {
				c.post(func() { c.handleMessage(msg) })
			}),
			c.channel.OnConnectionChange(func(change connection.StateChange) {
				c.post(func() { c.handleConnection(c.runCtx, change) })
			}),
		)
	}
	return c
}

// Run fetches the baseline snapshot and applies events until ctx ends.
// Run must be called once.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)
	defer func() {
		for _, fn := range c.unsub {
			fn()
		}
	}()

	c.runCtx = ctx
	c.startSnapshot(ctx, reasonBaseline)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-c.inbox:
			fn()
		}
	}
}

// Ready is closed once the baseline snapshot has been applied.
func (c *Coordinator) Ready() <-chan struct{} {
	return c.ready
}

// RequestMutation checks permissions, applies the change optimistically,
// and performs it on the backend. On failure or timeout the alert is
// restored to the exact pre-mutation state.
func (c *Coordinator) RequestMutation(ctx context.Context, user *models.User, alertID string, action models.Action, payload models.MutationPayload) (Result, error) {
	op := "mutate_" + string(action)
	res := Result{AlertID: alertID, Action: action}

	decision := c.perms.CheckAction(user, action)
	res.Decision = decision
	if !decision.Allowed {
		res.State = MutationDenied
		c.recordDenial(user, alertID, action, decision)
		return res, apperrors.PermissionDenied(op, decision.Reason)
	}

	var (
		m       *mutation
		prepErr error
	)
	if err := c.call(ctx, func() { m, decision, prepErr = c.prepare(user, alertID, action, payload) }); err != nil {
		res.State = MutationRejected
		return res, err
	}
	res.Decision = decision
	if apperrors.KindOf(prepErr) == apperrors.KindPermissionDenied {
		res.State = MutationDenied
		c.recordDenial(user, alertID, action, decision)
		return res, prepErr
	}
	if prepErr != nil {
		res.State = MutationRejected
		metrics.RecordMutation(string(action), string(MutationRejected), 0)
		return res, prepErr
	}
	res.MutationID = m.id

	mctx, cancel := context.WithTimeout(ctx, c.cfg.MutationTimeout)
	confirmed, callErr := c.backend.Mutate(mctx, alertID, action, m.payload)
	if callErr != nil && errors.Is(mctx.Err(), context.DeadlineExceeded) && apperrors.KindOf(callErr) != apperrors.KindTimeout {
		callErr = &apperrors.Error{Kind: apperrors.KindTimeout, Op: op, Code: "TIMEOUT", Err: callErr}
	}
	cancel()

	var (
		out    Result
		outErr error
	)
	if err := c.call(context.Background(), func() { out, outErr = c.complete(m, confirmed, callErr) }); err != nil {
		res.State = MutationApplied
		return res, err
	}
	out.Decision = decision
	return out, outErr
}

// Alerts returns every alert, most recently updated first.
func (c *Coordinator) Alerts() []*models.Alert {
	list := c.alerts.All()
	store.SortAlerts(list, store.SortByUpdated)
	return list
}

// Alert returns one alert.
func (c *Coordinator) Alert(id string) (*models.Alert, bool) {
	return c.alerts.Get(id)
}

// Queue returns the alerts routed to q, highest risk first.
func (c *Coordinator) Queue(q alerts.Queue) []*models.Alert {
	list := store.AlertsInQueue(c.alerts, q)
	store.SortAlerts(list, store.SortByRisk)
	return list
}

// Search returns alerts whose text fields contain text.
func (c *Coordinator) Search(text string) []*models.Alert {
	list := store.SearchAlerts(c.alerts, text)
	store.SortAlerts(list, store.SortByUpdated)
	return list
}

// Incidents returns every incident.
func (c *Coordinator) Incidents() []*models.Incident {
	return c.incidents.All()
}

// IncidentsForAlert returns the incidents referencing an alert.
func (c *Coordinator) IncidentsForAlert(alertID string) []*models.Incident {
	return store.IncidentsForAlert(c.incidents, alertID)
}

// Select marks an alert as selected in the UI.
func (c *Coordinator) Select(id string) bool {
	return c.alerts.Select(id)
}

// Selected returns the selected alert.
func (c *Coordinator) Selected() (*models.Alert, bool) {
	return c.alerts.Selected()
}

// Subscribe registers fn for store changes. fn runs on the coordinator
// goroutine and must not call RequestMutation.
func (c *Coordinator) Subscribe(fn func(Update)) func() {
	unsubAlerts := c.alerts.Watch(func(ch store.Change) { fn(Update{Entity: EntityAlert, Change: ch}) })
	unsubIncidents := c.incidents.Watch(func(ch store.Change) { fn(Update{Entity: EntityIncident, Change: ch}) })
	return func() {
		unsubAlerts()
		unsubIncidents()
	}
}

// ConnectionStatus reports the push connection.
func (c *Coordinator) ConnectionStatus() connection.Status {
	if c.channel == nil {
		return connection.Status{State: connection.StateDisconnected}
	}
	return c.channel.Status()
}

func (c *Coordinator) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

var errStopped = apperrors.New(apperrors.KindTransport, "coordinator", "NOT_RUNNING", "coordinator is not running")

// call runs fn on the loop and waits for it. ctx only bounds the wait for
// the loop to accept fn.
func (c *Coordinator) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case c.inbox <- func() { fn(); close(finished) }:
	case <-c.done:
		return errStopped
	case <-ctx.Done():
		return apperrors.Wrap(apperrors.KindTimeout, "coordinator", ctx.Err())
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		return errStopped
	}
}

func (c *Coordinator) startSnapshot(ctx context.Context, reason string) {
	if c.syncing {
		c.resyncPending = true
		return
	}
	c.syncing = true
	delay := c.limiter.Reserve().Delay()

	go func() {
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		alertsPage, incidentsPage, err := c.fetchSnapshot(ctx)
		c.post(func() { c.applySnapshot(ctx, reason, alertsPage.Items, incidentsPage.Items, err) })
	}()
}

func (c *Coordinator) fetchSnapshot(ctx context.Context) (models.Page[*models.Alert], models.Page[*models.Incident], error) {
	fctx, cancel := context.WithTimeout(ctx, c.cfg.SnapshotTimeout)
	defer cancel()

	var (
		alertsPage    models.Page[*models.Alert]
		incidentsPage models.Page[*models.Incident]
	)
	g, gctx := errgroup.WithContext(fctx)
	g.Go(func() error {
		page, err := c.backend.FetchAlerts(gctx, backend.AlertFilter{Limit: c.cfg.SnapshotLimit})
		alertsPage = page
		return err
	})
	g.Go(func() error {
		page, err := c.backend.FetchIncidents(gctx)
		incidentsPage = page
		return err
	})
	err := g.Wait()
	return alertsPage, incidentsPage, err
}

func (c *Coordinator) applySnapshot(ctx context.Context, reason string, alertItems []*models.Alert, incidentItems []*models.Incident, err error) {
	c.syncing = false

	if err != nil {
		metrics.RecordSnapshotFetch(reason, false)
		c.log.Error().Err(err).Str("reason", reason).Dur("retry_in", c.cfg.RetryDelay).Msg("Snapshot fetch failed")
		c.flushBuffered()
		if c.resyncPending {
			c.resyncPending = false
			c.startSnapshot(ctx, reason)
			return
		}
		time.AfterFunc(c.cfg.RetryDelay, func() {
			c.post(func() { c.startSnapshot(ctx, reasonRetry) })
		})
		return
	}

	metrics.RecordSnapshotFetch(reason, true)
	c.alerts.Set(alertItems)
	c.incidents.Set(incidentItems)
	c.reconcileMutations()
	replayed := c.flushBuffered()

	c.log.Info().
		Str("reason", reason).
		Int("alerts", len(alertItems)).
		Int("incidents", len(incidentItems)).
		Int("replayed", replayed).
		Msg("Snapshot applied")

	if !c.baselined {
		c.baselined = true
		close(c.ready)
	}
	if c.resyncPending {
		c.resyncPending = false
		c.startSnapshot(ctx, reasonGap)
	}
}

// reconcileMutations re-applies in-flight optimistic changes on top of a
// fresh snapshot, or supersedes them when the snapshot is newer.
func (c *Coordinator) reconcileMutations() {
	for id, m := range c.mutations {
		cur, ok := c.alerts.Get(id)
		switch {
		case !ok && m.remove:
		case !ok:
			c.supersede(m, "alert missing from snapshot")
		case cur.UpdatedAt.After(m.base.UpdatedAt):
			c.supersede(m, "snapshot carries newer state")
		case m.remove:
			c.alerts.Remove(id)
		default:
			c.alerts.Replace(m.optimistic)
		}
	}
}

func (c *Coordinator) flushBuffered() int {
	pending := c.buffered
	c.buffered = nil
	for _, msg := range pending {
		c.applyDelta(msg)
	}
	return len(pending)
}

func (c *Coordinator) handleConnection(ctx context.Context, change connection.StateChange) {
	switch change.To {
	case connection.StateConnected:
		if change.DisconnectedFor > c.cfg.ResyncThreshold {
			c.log.Info().Dur("disconnected_for", change.DisconnectedFor).Msg("Reconnected after gap, resynchronizing")
			c.startSnapshot(ctx, reasonGap)
		} else if change.DisconnectedFor > 0 {
			c.log.Debug().Dur("disconnected_for", change.DisconnectedFor).Msg("Reconnected after brief disconnect")
		}
	case connection.StateError:
		c.log.Error().Err(change.Err).Msg("Push channel unavailable, showing last known state")
	}
}

func (c *Coordinator) handleMessage(msg *models.Message) {
	if !msg.Type.IsAlert() && !msg.Type.IsIncident() {
		c.log.Debug().Str("type", string(msg.Type)).Msg("Ignoring push message")
		return
	}

	if c.cfg.AckDeltas {
		c.ack(msg)
	}

	if c.syncing {
		if len(c.buffered) >= c.cfg.MaxBuffered {
			c.buffered = c.buffered[1:]
			c.resyncPending = true
			metrics.RecordDelta(string(msg.Type), "overflow")
			c.log.Warn().Int("max", c.cfg.MaxBuffered).Msg("Delta buffer full during snapshot, scheduling another resync")
		}
		c.buffered = append(c.buffered, msg)
		metrics.RecordDelta(string(msg.Type), "buffered")
		return
	}
	c.applyDelta(msg)
}

func (c *Coordinator) ack(msg *models.Message) {
	reply, err := push.NewMessage(models.TypeAck, map[string]string{"id": msg.ID})
	if err != nil {
		return
	}
	if err := c.channel.Send(reply); err != nil {
		c.log.Debug().Err(err).Str("message_id", msg.ID).Msg("Failed to ack delta")
	}
}

func (c *Coordinator) applyDelta(msg *models.Message) {
	typ := string(msg.Type)

	switch {
	case msg.Type == models.TypeAlertDeleted:
		p, err := push.DecodeDeleted(msg)
		if err != nil {
			c.rejectDelta(msg, err)
			return
		}
		if m := c.mutations[p.ID]; m != nil {
			if p.UpdatedAt.Before(m.base.UpdatedAt) {
				metrics.RecordDelta(typ, "stale")
				c.log.Debug().Str("alert_id", p.ID).Msg("Discarding stale delete")
				return
			}
			if m.remove {
				c.settle(m)
			} else {
				c.supersede(m, "alert deleted by server")
			}
		}
		if cur, ok := c.alerts.Get(p.ID); ok && p.UpdatedAt.Before(cur.UpdatedAt) {
			metrics.RecordDelta(typ, "stale")
			c.log.Debug().Str("alert_id", p.ID).Msg("Discarding stale delete")
			return
		}
		c.alerts.Remove(p.ID)
		metrics.RecordDelta(typ, "applied")

	case msg.Type.IsAlert():
		a, err := push.DecodeAlert(msg)
		if err != nil {
			c.rejectDelta(msg, err)
			return
		}
		if m := c.mutations[a.ID]; m != nil {
			if !a.UpdatedAt.After(m.base.UpdatedAt) {
				metrics.RecordDelta(typ, "stale")
				return
			}
			c.supersede(m, "newer state pushed")
		}
		prev, existed := c.alerts.Get(a.ID)
		if _, err := c.alerts.Upsert(a); err != nil {
			metrics.RecordDelta(typ, "stale")
			c.log.Debug().Err(err).Str("alert_id", a.ID).Msg("Discarding out-of-order alert delta")
			return
		}
		metrics.RecordDelta(typ, "applied")
		if cur, ok := c.alerts.Get(a.ID); ok && existed && alerts.Crossed(prev.RiskScore, cur.RiskScore) {
			c.log.Info().
				Str("alert_id", a.ID).
				Str("from", string(alerts.QueueOf(prev))).
				Str("to", string(alerts.QueueOf(cur))).
				Msg("Alert moved between queues")
		}

	case msg.Type.IsIncident():
		inc, err := push.DecodeIncident(msg)
		if err != nil {
			c.rejectDelta(msg, err)
			return
		}
		if _, err := c.incidents.Upsert(inc); err != nil {
			metrics.RecordDelta(typ, "stale")
			c.log.Debug().Err(err).Str("incident_id", inc.ID).Msg("Discarding out-of-order incident delta")
			return
		}
		metrics.RecordDelta(typ, "applied")
	}
}

func (c *Coordinator) rejectDelta(msg *models.Message, err error) {
	metrics.RecordDelta(string(msg.Type), "invalid")
	c.log.Warn().Err(err).Str("type", string(msg.Type)).Str("message_id", msg.ID).Msg("Dropping malformed delta")
}

// prepare validates the request against the current alert and applies it
// optimistically. The returned decision covers the status change, which
// may need more than the action's own permissions.
func (c *Coordinator) prepare(user *models.User, alertID string, action models.Action, payload models.MutationPayload) (*mutation, permissions.Decision, error) {
	op := "mutate_" + string(action)
	allowed := permissions.Decision{Allowed: true}
	cur, ok := c.alerts.Get(alertID)
	if !ok {
		return nil, allowed, &apperrors.Error{
			Kind:    apperrors.KindValidation,
			Op:      op,
			Code:    "NOT_FOUND",
			Message: fmt.Sprintf("alert %s not found", alertID),
			Err:     apperrors.ErrNotFound,
		}
	}

	status, remove, err := targetStatus(action, cur.Status, payload)
	if err != nil {
		return nil, allowed, err
	}
	decision := allowed
	if !remove {
		decision = c.perms.CheckTransition(user, action, cur.Status, status)
		if !decision.Allowed {
			return nil, decision, apperrors.PermissionDenied(op, decision.Reason)
		}
		payload.Status = status
	}

	base := cur
	prior := c.mutations[alertID]
	if prior != nil {
		base = prior.base
	}

	m := &mutation{
		id:      uuid.NewString(),
		user:    user,
		alertID: alertID,
		action:  action,
		payload: payload,
		remove:  remove,
		started: time.Now(),
		state:   MutationSnapshotted,
		base:    base.Clone(),
	}
	if prior != nil {
		c.supersede(prior, "replaced by mutation "+m.id)
	}

	if remove {
		c.alerts.Remove(alertID)
	} else {
		opt := cur.Clone()
		opt.Status = status
		opt.Pending = &models.PendingChange{
			MutationID: m.id,
			Action:     string(action),
			Status:     status,
			Since:      m.started.UTC(),
		}
		m.optimistic = opt
		c.alerts.Replace(opt)
	}
	m.advance(MutationApplied)
	c.mutations[alertID] = m

	c.log.Debug().Str("mutation_id", m.id).Str("alert_id", alertID).Str("action", string(action)).Msg("Applied optimistic update")
	return m, decision, nil
}

func (c *Coordinator) complete(m *mutation, confirmed *models.Alert, callErr error) (Result, error) {
	res := Result{MutationID: m.id, AlertID: m.alertID, Action: m.action}
	elapsed := time.Since(m.started).Seconds()

	if m.state == MutationConfirmed {
		// A server delete settled the mutation first; the alert stays gone
		// whatever the response says.
		c.log.Debug().Str("mutation_id", m.id).Err(callErr).Msg("Mutation already confirmed by push")
		res.State = MutationConfirmed
		return res, nil
	}
	if m.state == MutationSuperseded || c.mutations[m.alertID] != m {
		res.State = MutationSuperseded
		res.Alert, _ = c.alerts.Get(m.alertID)
		c.log.Debug().Str("mutation_id", m.id).Err(callErr).Msg("Discarding response of superseded mutation")
		return res, &apperrors.Error{
			Kind:    apperrors.KindConflict,
			Op:      "mutate_" + string(m.action),
			Code:    "SUPERSEDED",
			Message: "a newer change replaced this mutation",
			Err:     apperrors.ErrSuperseded,
		}
	}
	delete(c.mutations, m.alertID)

	if callErr != nil {
		c.alerts.Replace(m.base)
		m.advance(MutationRolledBack)
		metrics.RecordMutation(string(m.action), string(MutationRolledBack), elapsed)
		c.auditor.Record(audit.NewEvent(audit.KindMutationRolledBack, m.user.Actor(), m.role(), string(m.action), m.alertID, map[string]interface{}{
			"mutation_id": m.id,
			"code":        apperrors.CodeOf(callErr),
			"reason":      callErr.Error(),
		}))
		c.log.Warn().Err(callErr).Str("mutation_id", m.id).Str("alert_id", m.alertID).Str("action", string(m.action)).Msg("Mutation failed, rolled back")

		res.State = MutationRolledBack
		res.Alert = m.base.Clone()
		return res, callErr
	}

	m.advance(MutationConfirmed)
	if m.remove {
		c.alerts.Remove(m.alertID)
	} else {
		at := time.Now().UTC()
		if confirmed != nil {
			entity := confirmed.Clone()
			entity.Pending = nil
			if entity.ID == "" {
				entity.ID = m.alertID
			}
			if _, err := c.alerts.Upsert(entity); err != nil {
				c.log.Debug().Err(err).Str("mutation_id", m.id).Msg("Confirmed entity older than stored state")
				c.alerts.Update(m.alertID, clearPending)
			}
			if !confirmed.UpdatedAt.IsZero() {
				at = confirmed.UpdatedAt
			}
		} else {
			c.alerts.Update(m.alertID, clearPending)
		}
		res.Alert = c.appendHistory(m, at)
	}

	c.recordConfirmed(m, elapsed)
	res.State = MutationConfirmed
	return res, nil
}

// settle confirms a pending delete that the server announced before the
// REST call returned.
func (c *Coordinator) settle(m *mutation) {
	if !m.advance(MutationConfirmed) {
		return
	}
	if c.mutations[m.alertID] == m {
		delete(c.mutations, m.alertID)
	}
	c.recordConfirmed(m, time.Since(m.started).Seconds())
}

// appendHistory adds the confirmed mutation to the alert's audit history
// unless the server entity already carries an entry for it.
func (c *Coordinator) appendHistory(m *mutation, at time.Time) *models.Alert {
	cur, ok := c.alerts.Get(m.alertID)
	if !ok {
		return nil
	}
	entry := models.AuditEntry{
		Timestamp: at,
		Actor:     m.user.Actor(),
		Action:    string(m.action),
		Notes:     m.payload.Notes,
	}
	for _, e := range cur.AuditHistory {
		if e.Actor == entry.Actor && e.Action == entry.Action && e.Timestamp.After(m.base.UpdatedAt) {
			return cur
		}
	}
	out, _ := store.AppendAudit(c.alerts, m.alertID, entry)
	return out
}

func (c *Coordinator) recordConfirmed(m *mutation, elapsed float64) {
	metrics.RecordMutation(string(m.action), string(MutationConfirmed), elapsed)
	details := map[string]interface{}{"mutation_id": m.id}
	if m.payload.Status != "" {
		details["status"] = string(m.payload.Status)
	}
	if m.payload.Notes != "" {
		details["notes"] = m.payload.Notes
	}
	c.auditor.Record(audit.NewEvent(audit.KindMutationConfirmed, m.user.Actor(), m.role(), string(m.action), m.alertID, details))
	c.log.Info().Str("mutation_id", m.id).Str("alert_id", m.alertID).Str("action", string(m.action)).Msg("Mutation confirmed")
}

func (c *Coordinator) supersede(m *mutation, reason string) {
	if !m.advance(MutationSuperseded) {
		return
	}
	if c.mutations[m.alertID] == m {
		delete(c.mutations, m.alertID)
	}
	metrics.RecordMutation(string(m.action), string(MutationSuperseded), time.Since(m.started).Seconds())
	c.auditor.Record(audit.NewEvent(audit.KindMutationSuperseded, m.user.Actor(), m.role(), string(m.action), m.alertID, map[string]interface{}{
		"mutation_id": m.id,
		"reason":      reason,
	}))
	c.log.Info().Str("mutation_id", m.id).Str("alert_id", m.alertID).Str("reason", reason).Msg("Mutation superseded")
}

func (c *Coordinator) recordDenial(user *models.User, alertID string, action models.Action, d permissions.Decision) {
	role := ""
	if user != nil {
		role = string(user.Role)
	}
	missing := make([]string, len(d.Missing))
	for i, p := range d.Missing {
		missing[i] = string(p)
	}

	metrics.RecordPermissionDenied(string(action), role)
	c.auditor.Record(audit.NewEvent(audit.KindPermissionDenied, user.Actor(), role, string(action), alertID, map[string]interface{}{
		"reason":  d.Reason,
		"missing": strings.Join(missing, ","),
	}))
	c.log.Warn().
		Str("actor", user.Actor()).
		Str("role", role).
		Str("action", string(action)).
		Str("alert_id", alertID).
		Str("reason", d.Reason).
		Msg("Permission denied")
}

func clearPending(a *models.Alert) *models.Alert {
	a.Pending = nil
	return a
}
