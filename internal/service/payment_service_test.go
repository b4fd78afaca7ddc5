package service

import (
	"context"
	"errors"
	"testing"

	"carelink/config"
	"carelink/internal/domain"
	"carelink/internal/repository"
	appErrors "carelink/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestStatusNotRequiredWithoutLink(t *testing.T) {
	h := newHarness(t)
	req := h.accepted(t, domain.ServiceTypeMessage)

	view, err := h.payments.Status(context.Background(), client, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusNotRequired, view.Status)
}

func TestStatusPollConfirmsThroughProvider(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.gated(t, domain.ServiceTypeMessage)

	gomock.InOrder(
		h.provider.EXPECT().VerifyPayment(gomock.Any(), *req.PaymentReference).Return(false, nil),
		h.provider.EXPECT().VerifyPayment(gomock.Any(), *req.PaymentReference).Return(false, errors.New("503")),
		h.provider.EXPECT().VerifyPayment(gomock.Any(), *req.PaymentReference).Return(true, nil),
	)

	view, err := h.payments.Status(ctx, client, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusUnpaid, view.Status)

	view, err = h.payments.Status(ctx, client, req.ID)
	require.NoError(t, err, "provider failures degrade to the last known state")
	assert.Equal(t, domain.PaymentStatusUnpaid, view.Status)

	view, err = h.payments.Status(ctx, client, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, view.Status)
	require.NotNil(t, view.Source)
	assert.Equal(t, domain.PaymentSourceProvider, *view.Source)

	// Paid requests are never re-verified.
	view, err = h.payments.Status(ctx, client, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, view.Status)
}

func TestSelfReportOpensGateAndIsAudited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.gated(t, domain.ServiceTypeMessage)

	_, err := h.payments.SelfReport(ctx, professional, req.ID)
	assert.ErrorIs(t, err, appErrors.ErrWrongRole)

	view, err := h.payments.SelfReport(ctx, client, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, view.Status)
	require.NotNil(t, view.Source)
	assert.Equal(t, domain.PaymentSourceSelfReported, *view.Source)

	logs, err := h.audit.ListByResource(ctx, "service_request", itoa(req.ID))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "payment.self_report", logs[0].Action)

	// Provider confirmation later upgrades the source.
	confirmed, err := h.payments.ConfirmFromProvider(ctx, *req.PaymentReference)
	require.NoError(t, err)
	assert.True(t, confirmed.PaymentCompleted)
	assert.Equal(t, domain.PaymentSourceProvider, *confirmed.PaymentSource)
}

func TestSelfReportAdvisoryWhenDisabled(t *testing.T) {
	h := newHarness(t, func(c *config.PaymentConfig) { c.AllowSelfReport = false })
	ctx := context.Background()
	req := h.gated(t, domain.ServiceTypeMessage)
	h.provider.EXPECT().VerifyPayment(gomock.Any(), *req.PaymentReference).Return(false, nil)

	view, err := h.payments.SelfReport(ctx, client, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusUnpaid, view.Status)

	got, err := h.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, got.PaymentCompleted)
	assert.NotNil(t, got.PaymentSelfReportedAt)
	assert.True(t, got.CommunicationBlocked())
}

func TestPaymentCompletedIsMonotonic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.gated(t, domain.ServiceTypeMessage)

	_, err := h.payments.ConfirmFromProvider(ctx, *req.PaymentReference)
	require.NoError(t, err)

	// Nothing that follows may clear the flag: more confirmations, a
	// self-report, completion of the request.
	_, err = h.payments.ConfirmFromProvider(ctx, *req.PaymentReference)
	require.NoError(t, err)
	_, err = h.payments.SelfReport(ctx, client, req.ID)
	require.NoError(t, err)
	_, err = h.lifecycle.Complete(ctx, professional, req.ID, 0)
	require.NoError(t, err)

	got, err := h.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, got.PaymentCompleted)
	assert.Equal(t, domain.PaymentSourceProvider, *got.PaymentSource)
}

func countNotifications(t *testing.T, h *harness, userID uint, notifType string) int {
	t.Helper()
	list, err := repository.NewNotificationRepository(h.db).ListByUserID(context.Background(), userID, 100, 0)
	require.NoError(t, err)
	n := 0
	for _, note := range list {
		if note.Type == notifType {
			n++
		}
	}
	return n
}

func TestLateConfirmationOnClosedRequestIsRecordedQuietly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.gated(t, domain.ServiceTypeMessage)
	_, err := h.lifecycle.Cancel(ctx, client, req.ID, "changed my mind", 0)
	require.NoError(t, err)

	got, err := h.payments.ConfirmFromProvider(ctx, *req.PaymentReference)
	require.NoError(t, err)
	assert.True(t, got.PaymentCompleted)
	assert.Equal(t, domain.RequestStatusCancelled, got.Status)
	assert.Zero(t, countNotifications(t, h, professional.UserID, NotifPaymentConfirmed))
	assert.Zero(t, countNotifications(t, h, client.UserID, NotifPaymentConfirmed))

	live := h.gated(t, domain.ServiceTypeVideoCall)
	_, err = h.payments.ConfirmFromProvider(ctx, *live.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, 1, countNotifications(t, h, professional.UserID, NotifPaymentConfirmed))
}

func TestConfirmUnknownReference(t *testing.T) {
	h := newHarness(t)
	_, err := h.payments.ConfirmFromProvider(context.Background(), "nope")
	assert.ErrorIs(t, err, appErrors.ErrRequestNotFound)
}

func TestReconcileAwaitingConfirmsPaidRequests(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	paid := h.gated(t, domain.ServiceTypeMessage)
	unpaid := h.gated(t, domain.ServiceTypeInPerson)

	h.provider.EXPECT().VerifyPayment(gomock.Any(), *paid.PaymentReference).Return(true, nil)
	h.provider.EXPECT().VerifyPayment(gomock.Any(), *unpaid.PaymentReference).Return(false, nil)

	n, err := h.payments.ReconcileAwaiting(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.requests.GetByID(ctx, paid.ID)
	require.NoError(t, err)
	assert.True(t, got.PaymentCompleted)
	got, err = h.requests.GetByID(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.False(t, got.PaymentCompleted)
}
