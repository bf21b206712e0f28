package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mateatletas/payments/internal/domain"
)

func TestWebhookIgnoredInMockMode(t *testing.T) {
	h := newHarness(t, true)
	h.seedMembership(t, "m1", "tutor-1", "prod-subs-1")

	ack, err := h.service.HandleWebhook(context.Background(), paymentWebhook("123"))
	require.NoError(t, err)
	assert.Equal(t, domain.AckIgnored, ack.Status)
	assert.Equal(t, 0, h.gateway.getPayments, "mock mode never reaches the gateway")
	assert.Equal(t, domain.MembershipPending, h.membership(t, "m1").State)
}

func TestWebhookIgnoresUnusableNotifications(t *testing.T) {
	tests := []struct {
		name string
		n    domain.WebhookNotification
	}{
		{name: "merchant order", n: domain.WebhookNotification{Type: "merchant_order", DataID: "1"}},
		{name: "missing id", n: domain.WebhookNotification{Type: "payment"}},
		{name: "blank id", n: domain.WebhookNotification{Type: "payment", DataID: "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false)
			ack, err := h.service.HandleWebhook(context.Background(), tt.n)
			require.NoError(t, err)
			assert.Equal(t, domain.AckIgnored, ack.Status)
			assert.Equal(t, 0, h.gateway.getPayments)
		})
	}
}

func TestWebhookApprovedActivatesMembership(t *testing.T) {
	h := newHarness(t, false)
	h.seedMembership(t, "m1", "tutor-1", "prod-subs-2")
	h.gateway.setPayment("123", domain.PaymentApproved, "membresia:m1", 3000)

	ack, err := h.service.HandleWebhook(context.Background(), paymentWebhook("123"))
	require.NoError(t, err)
	assert.Equal(t, domain.AckProcessed, ack.Status)
	assert.Equal(t, "123", ack.PaymentID)

	m := h.membership(t, "m1")
	assert.Equal(t, domain.MembershipActive, m.State)
	require.NotNil(t, m.StartDate)
	require.NotNil(t, m.NextPaymentDate)
	assert.Equal(t, domain.AddMonths(*m.StartDate, 3), *m.NextPaymentDate)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.webhooks.WithLabelValues("processed")))
}

func TestWebhookLegacyReference(t *testing.T) {
	h := newHarness(t, false)
	h.seedMembership(t, "m1", "tutor-1", "prod-subs-1")
	h.gateway.setPayment("123", domain.PaymentApproved, "membresia-m1", 5000)

	ack, err := h.service.HandleWebhook(context.Background(), paymentWebhook("123"))
	require.NoError(t, err)
	assert.Equal(t, domain.AckProcessed, ack.Status)
	assert.Equal(t, domain.MembershipActive, h.membership(t, "m1").State)
}

func TestWebhookDuplicateDeliveryIsSkipped(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.seedMembership(t, "m1", "tutor-1", "prod-subs-1")
	h.gateway.setPayment("123", domain.PaymentApproved, "membresia:m1", 5000)

	_, err := h.service.HandleWebhook(ctx, paymentWebhook("123"))
	require.NoError(t, err)
	first := *h.membership(t, "m1").NextPaymentDate

	ack, err := h.service.HandleWebhook(ctx, paymentWebhook("123"))
	require.NoError(t, err)
	assert.Equal(t, domain.AckDuplicate, ack.Status)
	assert.Equal(t, first, *h.membership(t, "m1").NextPaymentDate)
	assert.Equal(t, []string{EventMembershipActivated}, h.events.types())
}

func TestWebhookRejectedPayments(t *testing.T) {
	t.Run("membership is cancelled", func(t *testing.T) {
		h := newHarness(t, false)
		h.seedMembership(t, "m1", "tutor-1", "prod-subs-1")
		h.gateway.setPayment("9", domain.PaymentRejected, "membresia:m1", 5000)

		ack, err := h.service.HandleWebhook(context.Background(), paymentWebhook("9"))
		require.NoError(t, err)
		assert.Equal(t, domain.AckProcessed, ack.Status)
		assert.Equal(t, domain.MembershipCancelled, h.membership(t, "m1").State)
	})

	t.Run("pre-enrolled enrollment is deleted", func(t *testing.T) {
		h := newHarness(t, false)
		h.seedEnrollment(t, "e1", "est-1", "curso-1")
		h.gateway.setPayment("10", domain.PaymentCancelled, "inscripcion:e1", 3500)

		ack, err := h.service.HandleWebhook(context.Background(), paymentWebhook("10"))
		require.NoError(t, err)
		assert.Equal(t, domain.AckProcessed, ack.Status)
		assert.Equal(t, 0, h.enrollments.Len())
	})
}

func TestWebhookApprovalAfterCancellationIsRefused(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.seedMembership(t, "m1", "tutor-1", "prod-subs-1")
	_, err := h.service.memberships.Cancel(ctx, "m1", "")
	require.NoError(t, err)
	h.gateway.setPayment("11", domain.PaymentApproved, "membresia:m1", 5000)

	ack, err := h.service.HandleWebhook(ctx, paymentWebhook("11"))
	require.NoError(t, err)
	assert.Equal(t, domain.AckIgnored, ack.Status)
	assert.Equal(t, domain.MembershipCancelled, h.membership(t, "m1").State)

	seen, err := h.dedup.Seen(ctx, "11:approved")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestWebhookApprovedActivatesEnrollment(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.seedEnrollment(t, "e1", "est-1", "curso-1")
	h.gateway.setPayment("12", domain.PaymentApproved, "inscripcion:e1", 3500)

	ack, err := h.service.HandleWebhook(ctx, paymentWebhook("12"))
	require.NoError(t, err)
	assert.Equal(t, domain.AckProcessed, ack.Status)

	e, err := h.enrollments.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentActive, e.State)
}

func TestWebhookBusinessProblemsAreAcknowledged(t *testing.T) {
	tests := []struct {
		name   string
		status string
		ref    string
		want   domain.AckStatus
	}{
		{name: "unknown reference kind", status: domain.PaymentApproved, ref: "pedido:1", want: domain.AckIgnored},
		{name: "empty reference", status: domain.PaymentApproved, ref: "", want: domain.AckIgnored},
		{name: "missing membership", status: domain.PaymentApproved, ref: "membresia:ghost", want: domain.AckIgnored},
		{name: "missing enrollment", status: domain.PaymentRejected, ref: "inscripcion:ghost", want: domain.AckProcessed},
		{name: "pending payment", status: "in_process", ref: "membresia:m1", want: domain.AckProcessed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false)
			h.seedMembership(t, "m1", "tutor-1", "prod-subs-1")
			h.gateway.setPayment("77", tt.status, tt.ref, 5000)

			ack, err := h.service.HandleWebhook(context.Background(), paymentWebhook("77"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ack.Status)
			assert.Equal(t, domain.MembershipPending, h.membership(t, "m1").State)
		})
	}
}

func TestWebhookPendingDoesNotMark(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.seedMembership(t, "m1", "tutor-1", "prod-subs-1")
	h.gateway.setPayment("5", domain.PaymentPending, "membresia:m1", 5000)

	ack, err := h.service.HandleWebhook(ctx, paymentWebhook("5"))
	require.NoError(t, err)
	assert.Equal(t, "payment pending", ack.Message)

	seen, err := h.dedup.Seen(ctx, dedupKey("5", domain.PaymentPending))
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestWebhookGatewayFailureIsReturned(t *testing.T) {
	h := newHarness(t, false)
	h.gateway.getErr = errors.Join(domain.ErrIntegrationFailure, errors.New("connection reset"))

	ack, err := h.service.HandleWebhook(context.Background(), paymentWebhook("123"))
	assert.Nil(t, ack)
	assert.True(t, errors.Is(err, domain.ErrIntegrationFailure))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.webhooks.WithLabelValues("error")))
}

func TestWebhookMalformedPaymentIDIsIgnored(t *testing.T) {
	h := newHarness(t, false)
	h.gateway.getErr = domain.ErrMalformedWebhook

	ack, err := h.service.HandleWebhook(context.Background(), paymentWebhook("abc"))
	require.NoError(t, err)
	assert.Equal(t, domain.AckIgnored, ack.Status)
}

func TestWebhookAmountMismatchIsRefused(t *testing.T) {
	t.Run("membership stays pending", func(t *testing.T) {
		h := newHarness(t, false)
		ctx := context.Background()
		h.seedMembership(t, "m1", "tutor-1", "prod-subs-1")
		h.gateway.setPayment("20", domain.PaymentApproved, "membresia:m1", 50)

		ack, err := h.service.HandleWebhook(ctx, paymentWebhook("20"))
		require.NoError(t, err)
		assert.Equal(t, domain.AckIgnored, ack.Status)
		assert.Equal(t, "amount mismatch", ack.Message)
		assert.Equal(t, domain.MembershipPending, h.membership(t, "m1").State)
		assert.Empty(t, h.events.types())

		seen, err := h.dedup.Seen(ctx, dedupKey("20", domain.PaymentApproved))
		require.NoError(t, err)
		assert.True(t, seen)
	})

	t.Run("enrollment stays pre-enrolled", func(t *testing.T) {
		h := newHarness(t, false)
		ctx := context.Background()
		h.seedEnrollment(t, "e1", "est-1", "curso-1")
		h.gateway.setPayment("21", domain.PaymentApproved, "inscripcion:e1", 35)

		ack, err := h.service.HandleWebhook(ctx, paymentWebhook("21"))
		require.NoError(t, err)
		assert.Equal(t, "amount mismatch", ack.Message)

		e, err := h.enrollments.Get(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, domain.EnrollmentPreEnrolled, e.State)
	})

	t.Run("rounding differences are accepted", func(t *testing.T) {
		h := newHarness(t, false)
		h.seedMembership(t, "m1", "tutor-1", "prod-subs-1")
		h.gateway.setPayment("22", domain.PaymentApproved, "membresia:m1", 4990)

		ack, err := h.service.HandleWebhook(context.Background(), paymentWebhook("22"))
		require.NoError(t, err)
		assert.Equal(t, domain.AckProcessed, ack.Status)
		assert.Equal(t, domain.MembershipActive, h.membership(t, "m1").State)
	})
}

func TestWebhookLiveModeGuard(t *testing.T) {
	live, sandbox := true, false
	tests := []struct {
		name     string
		env      string
		liveMode *bool
		want     domain.MembershipState
	}{
		{name: "sandbox payment in production", env: "production", liveMode: &sandbox, want: domain.MembershipPending},
		{name: "missing flag in production", env: "production", liveMode: nil, want: domain.MembershipPending},
		{name: "live payment in production", env: "production", liveMode: &live, want: domain.MembershipActive},
		{name: "sandbox payment in development", env: "development", liveMode: &sandbox, want: domain.MembershipActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false, withEnvironment(tt.env))
			h.seedMembership(t, "m1", "tutor-1", "prod-subs-1")
			h.gateway.setPayment("30", domain.PaymentApproved, "membresia:m1", 5000)

			n := paymentWebhook("30")
			n.LiveMode = tt.liveMode
			ack, err := h.service.HandleWebhook(context.Background(), n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.membership(t, "m1").State)
			if tt.want == domain.MembershipPending {
				assert.Equal(t, domain.AckIgnored, ack.Status)
				assert.Equal(t, "test notification", ack.Message)
				assert.Equal(t, 0, h.gateway.getPayments)
			}
		})
	}
}
