package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualActivationAllowed(t *testing.T) {
	tests := []struct {
		mock bool
		env  string
		want bool
	}{
		{mock: true, env: "production", want: true},
		{mock: true, env: "development", want: true},
		{mock: false, env: "development", want: true},
		{mock: false, env: "test", want: true},
		{mock: false, env: "production", want: false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ManualActivationAllowed(tt.mock, tt.env), "mock=%v env=%s", tt.mock, tt.env)
	}
}

func TestLiveNotificationAccepted(t *testing.T) {
	live, sandbox := true, false
	tests := []struct {
		name     string
		liveMode *bool
		env      string
		want     bool
	}{
		{name: "live in production", liveMode: &live, env: "production", want: true},
		{name: "sandbox in production", liveMode: &sandbox, env: "production", want: false},
		{name: "missing in production", liveMode: nil, env: "production", want: false},
		{name: "sandbox in development", liveMode: &sandbox, env: "development", want: true},
		{name: "missing in test", liveMode: nil, env: "test", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LiveNotificationAccepted(tt.liveMode, tt.env))
		})
	}
}

func TestMembershipActivate(t *testing.T) {
	now := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	m := &Membership{ID: "m1", State: MembershipPending}

	require.NoError(t, m.Activate(now, 1))
	assert.Equal(t, MembershipActive, m.State)
	require.NotNil(t, m.StartDate)
	require.NotNil(t, m.NextPaymentDate)
	assert.Equal(t, now, *m.StartDate)
	assert.Equal(t, time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC), *m.NextPaymentDate)

	later := now.Add(time.Hour)
	require.NoError(t, m.Activate(later, 1))
	assert.Equal(t, MembershipActive, m.State)
	assert.Equal(t, later, *m.StartDate)
}

func TestMembershipActivateFromOverdue(t *testing.T) {
	m := &Membership{ID: "m1", State: MembershipOverdue}
	require.NoError(t, m.Activate(time.Now(), 0))
	assert.Equal(t, MembershipActive, m.State)
}

func TestMembershipActivateCancelled(t *testing.T) {
	m := &Membership{ID: "m1", State: MembershipCancelled}
	err := m.Activate(time.Now(), 1)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, MembershipCancelled, m.State)
	assert.Nil(t, m.StartDate)
}

func TestMembershipCancel(t *testing.T) {
	m := &Membership{ID: "m1", State: MembershipActive}
	assert.True(t, m.Cancel())
	assert.False(t, m.Cancel())
	assert.Equal(t, MembershipCancelled, m.State)
}

func TestMembershipMarkOverdue(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, (&Membership{State: MembershipActive, NextPaymentDate: &past}).MarkOverdue(now))
	assert.False(t, (&Membership{State: MembershipActive, NextPaymentDate: &future}).MarkOverdue(now))
	assert.False(t, (&Membership{State: MembershipPending}).MarkOverdue(now))
}

func TestMembershipAttachPreference(t *testing.T) {
	m := &Membership{ID: "m1"}

	changed, err := m.AttachPreference("pref-1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = m.AttachPreference("pref-1")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = m.AttachPreference("pref-2")
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "pref-1", *m.PreferenceID)
}

func TestProductDuration(t *testing.T) {
	three := 3
	zero := 0
	assert.Equal(t, 1, Product{}.Duration())
	assert.Equal(t, 1, Product{DurationMonths: &zero}.Duration())
	assert.Equal(t, 3, Product{DurationMonths: &three}.Duration())
}
