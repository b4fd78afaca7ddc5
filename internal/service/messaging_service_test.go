package service

import (
	"context"
	"testing"
	"time"

	"carelink/internal/domain"
	"carelink/internal/relay"
	appErrors "carelink/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendIsGatedUntilPaid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.gated(t, domain.ServiceTypeMessage)
	conv, err := h.convs.GetByPair(ctx, client.UserID, professional.UserID)
	require.NoError(t, err)

	_, err = h.messaging.Send(ctx, client, conv.ID, SendMessageInput{Content: "hello"})
	assert.ErrorIs(t, err, appErrors.ErrPaymentRequired)
	_, err = h.messaging.Send(ctx, professional, conv.ID, SendMessageInput{Content: "hi"})
	assert.ErrorIs(t, err, appErrors.ErrPaymentRequired)

	_, err = h.payments.ConfirmFromProvider(ctx, *req.PaymentReference)
	require.NoError(t, err)

	msg, err := h.messaging.Send(ctx, client, conv.ID, SendMessageInput{Content: "hello"})
	require.NoError(t, err)
	assert.False(t, msg.IsRead)
	assert.Equal(t, client.UserID, msg.SenderID)
}

func TestSendValidatesAndChecksMembership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.accepted(t, domain.ServiceTypeMessage)
	conv, err := h.convs.GetByPair(ctx, client.UserID, professional.UserID)
	require.NoError(t, err)

	_, err = h.messaging.Send(ctx, client, conv.ID, SendMessageInput{Content: "   "})
	assert.ErrorIs(t, err, appErrors.ErrEmptyMessage)

	_, err = h.messaging.Send(ctx, stranger, conv.ID, SendMessageInput{Content: "hey"})
	assert.ErrorIs(t, err, appErrors.ErrNotParticipant)

	_, err = h.messaging.List(ctx, stranger, conv.ID, nil)
	assert.ErrorIs(t, err, appErrors.ErrNotParticipant)

	_, err = h.messaging.Send(ctx, client, 9999, SendMessageInput{Content: "hey"})
	assert.ErrorIs(t, err, appErrors.ErrConversationNotFound)

	_, err = h.messaging.Send(ctx, client, conv.ID, SendMessageInput{MediaURL: "https://cdn.example/a.jpg"})
	assert.NoError(t, err, "attachment-only messages are allowed")
}

func TestMessagesListInOrderAndRelayed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.accepted(t, domain.ServiceTypeMessage)
	conv, err := h.convs.GetByPair(ctx, client.UserID, professional.UserID)
	require.NoError(t, err)
	sub := h.hub.Subscribe(professional.UserID)
	defer sub.Close()

	for _, body := range []string{"one", "two", "three"} {
		_, err := h.messaging.Send(ctx, client, conv.ID, SendMessageInput{Content: body})
		require.NoError(t, err)
	}
	reply, err := h.messaging.Send(ctx, professional, conv.ID, SendMessageInput{Content: "four"})
	require.NoError(t, err)

	list, err := h.messaging.List(ctx, professional, conv.ID, nil)
	require.NoError(t, err)
	require.Len(t, list, 4)
	for i, want := range []string{"one", "two", "three", "four"} {
		assert.Equal(t, want, list[i].Content)
	}

	var inserts int
	for len(sub.Events()) > 0 {
		ev := <-sub.Events()
		if ev.Table == relay.TableMessages && ev.Op == relay.OpInsert {
			inserts++
		}
	}
	assert.Equal(t, 4, inserts)

	unread, err := h.messaging.UnreadCount(ctx, professional)
	require.NoError(t, err)
	assert.EqualValues(t, 3, unread)

	n, err := h.messaging.MarkRead(ctx, professional, conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	unread, err = h.messaging.UnreadCount(ctx, client)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)

	since := reply.CreatedAt.Add(-time.Nanosecond)
	newer, err := h.messaging.List(ctx, client, conv.ID, &since)
	require.NoError(t, err)
	require.NotEmpty(t, newer)
	assert.Equal(t, "four", newer[len(newer)-1].Content)
}

func TestStartConversationIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.messaging.StartConversation(ctx, client, professional.UserID, nil)
	require.NoError(t, err)
	b, err := h.messaging.StartConversation(ctx, professional, client.UserID, nil)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, client.UserID, b.ClientID)

	_, err = h.messaging.StartConversation(ctx, client, client.UserID, nil)
	assert.Error(t, err)

	// Accepting later reuses the same conversation.
	req := h.accepted(t, domain.ServiceTypeMessage)
	conv, err := h.convs.GetByPair(ctx, client.UserID, professional.UserID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, conv.ID)

	other := domain.Actor{UserID: 400, Role: domain.RoleProfessional}
	_, err = h.messaging.StartConversation(ctx, other, client.UserID, &req.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotParticipant)
}

func TestCompletedRequestDoesNotBlockFollowUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.accepted(t, domain.ServiceTypeMessage)
	_, err := h.lifecycle.Complete(ctx, professional, req.ID, 0)
	require.NoError(t, err)
	conv, err := h.convs.GetByPair(ctx, client.UserID, professional.UserID)
	require.NoError(t, err)

	_, err = h.messaging.Send(ctx, client, conv.ID, SendMessageInput{Content: "thanks!"})
	assert.NoError(t, err)
}
