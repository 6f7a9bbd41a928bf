package syncer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "socsync/internal/errors"
	"socsync/pkg/models"
)

func TestTargetStatus(t *testing.T) {
	cases := []struct {
		action  models.Action
		current models.AlertStatus
		payload models.MutationPayload
		want    models.AlertStatus
		illegal bool
		invalid bool
	}{
		{action: models.ActionInvestigate, current: models.StatusNew, want: models.StatusInvestigating},
		{action: models.ActionInvestigate, current: models.StatusEscalated, illegal: true},
		{action: models.ActionAcknowledge, current: models.StatusInvestigating, want: models.StatusAcknowledged},
		{action: models.ActionAcknowledge, current: models.StatusAcknowledged, invalid: true},
		{action: models.ActionEscalate, current: models.StatusQuarantined, want: models.StatusEscalated},
		{action: models.ActionEscalate, current: models.StatusResolved, illegal: true},
		{action: models.ActionConfirm, current: models.StatusQuarantined, illegal: true},
		{action: models.ActionResolve, current: models.StatusConfirmed, want: models.StatusResolved},
		{action: models.ActionFalsePositive, current: models.StatusFalsePositive, invalid: true},
		{action: models.ActionQuarantine, current: models.StatusResolved, want: models.StatusQuarantined},
		{action: models.ActionRelease, current: models.StatusQuarantined, want: models.StatusResolved},
		{action: models.ActionRelease, current: models.StatusNew, illegal: true},
		{action: models.ActionUpdateStatus, current: models.StatusNew, payload: models.MutationPayload{Status: models.StatusConfirmed}, want: models.StatusConfirmed},
		{action: models.ActionUpdateStatus, current: models.StatusNew, payload: models.MutationPayload{Status: models.StatusNew}, invalid: true},
		{action: models.ActionUpdateStatus, current: models.StatusNew, invalid: true},
		{action: models.Action("nuke"), current: models.StatusNew, invalid: true},
	}
	for _, tc := range cases {
		name := string(tc.action) + "/" + string(tc.current)
		t.Run(name, func(t *testing.T) {
			got, remove, err := targetStatus(tc.action, tc.current, tc.payload)
			assert.False(t, remove)
			switch {
			case tc.illegal:
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperrors.ErrIllegalMove))
				assert.Equal(t, "ILLEGAL_TRANSITION", apperrors.CodeOf(err))
			case tc.invalid:
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
			default:
				require.NoError(t, err)
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestDeleteRemoves(t *testing.T) {
	_, remove, err := targetStatus(models.ActionDelete, models.StatusResolved, models.MutationPayload{})
	require.NoError(t, err)
	assert.True(t, remove)
}

func TestEveryActionHasAStatusRule(t *testing.T) {
	for _, action := range models.Actions {
		if action == models.ActionDelete || action == models.ActionUpdateStatus {
			continue
		}
		_, ok := ActionStatusTransitions[action]
		assert.True(t, ok, string(action))
	}
}

func TestMutationStateMachine(t *testing.T) {
	m := &mutation{state: MutationSnapshotted}
	assert.False(t, m.advance(MutationConfirmed))
	assert.True(t, m.advance(MutationApplied))
	assert.True(t, m.advance(MutationConfirmed))
	assert.True(t, m.state.Terminal())
	assert.False(t, m.advance(MutationSuperseded))

	for _, s := range []MutationState{MutationDenied, MutationRejected, MutationRolledBack, MutationSuperseded} {
		assert.True(t, s.Terminal(), string(s))
	}
}
