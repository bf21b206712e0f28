package payment

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mateatletas/payments/internal/domain"
)

func TestOverdueSweepMarksLapsedMemberships(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	lifecycle := h.service.Memberships()

	h.seedMembership(t, "lapsed", "tutor-1", "prod-subs-1")
	h.seedMembership(t, "current", "tutor-2", "prod-subs-1")
	h.seedMembership(t, "pending", "tutor-2", "prod-subs-1")

	lifecycle.now = fixedClock(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	_, err := lifecycle.Activate(ctx, "lapsed", 1)
	require.NoError(t, err)

	lifecycle.now = fixedClock(time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC))
	_, err = lifecycle.Activate(ctx, "current", 1)
	require.NoError(t, err)

	sweeper := NewOverdueSweeper(lifecycle, zap.NewNop())
	marked, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	assert.Equal(t, domain.MembershipOverdue, h.membership(t, "lapsed").State)
	assert.Equal(t, domain.MembershipActive, h.membership(t, "current").State)
	assert.Equal(t, domain.MembershipPending, h.membership(t, "pending").State)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.overdue))

	marked, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, marked)
}

func TestOverdueMembershipCanBeReactivated(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	lifecycle := h.service.Memberships()
	h.seedMembership(t, "m1", "tutor-1", "prod-subs-1")

	lifecycle.now = fixedClock(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	_, err := lifecycle.Activate(ctx, "m1", 1)
	require.NoError(t, err)
	lifecycle.now = fixedClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	_, err = lifecycle.MarkOverdue(ctx)
	require.NoError(t, err)

	m, err := lifecycle.Activate(ctx, "m1", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipActive, m.State)
	assert.Equal(t, "2024-04-01", m.NextPaymentDate.Format("2006-01-02"))
}

func TestOverdueSweeperSchedule(t *testing.T) {
	h := newHarness(t, true)
	sweeper := NewOverdueSweeper(h.service.Memberships(), nil)

	assert.Error(t, sweeper.Start("every now and then"))

	require.NoError(t, sweeper.Start("@every 1h"))
	<-sweeper.Stop().Done()
}
