package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"carelink/internal/domain"
	appErrors "carelink/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoRendezvous(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.tokens.Register(ctx, client.UserID, "client-device", "android"))
	req := h.accepted(t, domain.ServiceTypeVideoCall)

	ring, err := h.video.Initiate(ctx, professional, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VideoCallPending, ring.Status)
	assert.True(t, strings.HasPrefix(ring.RoomID, "req"))
	assert.Equal(t, "https://meet.example/"+ring.RoomID, ring.URL)

	pushes := h.push.dataOnly()
	require.Len(t, pushes, 1)
	assert.Equal(t, NotifVideoCall, pushes[0].Type)
	assert.Equal(t, ring.RoomID, pushes[0].Data["room_id"])

	// The client's poll sees the ring.
	view, err := h.lifecycle.Get(ctx, client, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VideoCallPending, view.VideoCallStatus)
	assert.False(t, view.CallJoinable)

	_, err = h.video.Join(ctx, client, req.ID)
	assert.ErrorIs(t, err, appErrors.ErrCallNotActive)

	active, err := h.video.Accept(ctx, client, req.ID, ring.RoomID)
	require.NoError(t, err)
	assert.Equal(t, domain.VideoCallActive, active.Status)

	before, err := h.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)

	again, err := h.video.Accept(ctx, client, req.ID, ring.RoomID)
	require.NoError(t, err)
	assert.Equal(t, ring.RoomID, again.RoomID)
	join, err := h.video.Join(ctx, professional, req.ID)
	require.NoError(t, err)
	assert.Equal(t, ring.RoomID, join.RoomID)

	after, err := h.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version, "re-entry must not write")
	assert.Equal(t, domain.VideoCallActive, after.VideoCallStatus)
}

func TestVideoAcceptRejectsStaleRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.accepted(t, domain.ServiceTypeVideoCall)

	first, err := h.video.Initiate(ctx, professional, req.ID)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := h.video.Initiate(ctx, professional, req.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.RoomID, second.RoomID)

	_, err = h.video.Accept(ctx, client, req.ID, first.RoomID)
	assert.ErrorIs(t, err, appErrors.ErrRoomMismatch)

	_, err = h.video.Accept(ctx, client, req.ID, second.RoomID)
	require.NoError(t, err)

	_, err = h.video.Initiate(ctx, professional, req.ID)
	assert.ErrorIs(t, err, appErrors.ErrCallInProgress)
}

func TestVideoDeclineLeavesRoomPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.accepted(t, domain.ServiceTypeVideoCall)
	ring, err := h.video.Initiate(ctx, professional, req.ID)
	require.NoError(t, err)

	require.NoError(t, h.video.Decline(ctx, client, req.ID))

	got, err := h.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VideoCallPending, got.VideoCallStatus)
	assert.Equal(t, ring.RoomID, got.VideoCallRoomID)
}

func TestVideoEndAndReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.accepted(t, domain.ServiceTypeVideoCall)

	_, err := h.video.End(ctx, client, req.ID)
	assert.ErrorIs(t, err, appErrors.ErrCallNotActive)

	ring, err := h.video.Initiate(ctx, professional, req.ID)
	require.NoError(t, err)
	_, err = h.video.Accept(ctx, client, req.ID, ring.RoomID)
	require.NoError(t, err)

	_, err = h.video.Reset(ctx, professional, req.ID)
	assert.ErrorIs(t, err, appErrors.ErrCallNotEnded)

	ended, err := h.video.End(ctx, client, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VideoCallEnded, ended.Status)

	again, err := h.video.End(ctx, professional, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VideoCallEnded, again.Status)

	_, err = h.video.Join(ctx, client, req.ID)
	assert.ErrorIs(t, err, appErrors.ErrCallNotActive)

	_, err = h.video.Reset(ctx, client, req.ID)
	assert.ErrorIs(t, err, appErrors.ErrWrongRole)
	cleared, err := h.video.Reset(ctx, professional, req.ID)
	require.NoError(t, err)
	assert.Empty(t, cleared.Status)
	assert.Empty(t, cleared.RoomID)

	// A new attempt is allowed after reset.
	_, err = h.video.Initiate(ctx, professional, req.ID)
	assert.NoError(t, err)
}

func TestVideoResetLeavesClosedRequestUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.accepted(t, domain.ServiceTypeVideoCall)

	ring, err := h.video.Initiate(ctx, professional, req.ID)
	require.NoError(t, err)
	_, err = h.video.Accept(ctx, client, req.ID, ring.RoomID)
	require.NoError(t, err)
	_, err = h.lifecycle.Complete(ctx, professional, req.ID, 0)
	require.NoError(t, err)

	before, err := h.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.VideoCallEnded, before.VideoCallStatus)

	_, err = h.video.Reset(ctx, professional, req.ID)
	assert.ErrorIs(t, err, appErrors.ErrTerminalState)

	after, err := h.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, domain.RequestStatusCompleted, after.Status)
	assert.Equal(t, domain.VideoCallEnded, after.VideoCallStatus)
	assert.Equal(t, ring.RoomID, after.VideoCallRoomID)
}

func TestVideoRespectsGateAndServiceType(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	gated := h.gated(t, domain.ServiceTypeVideoCall)
	_, err := h.video.Initiate(ctx, professional, gated.ID)
	assert.ErrorIs(t, err, appErrors.ErrPaymentRequired)

	// Paying opens the gate for entry.
	_, err = h.payments.ConfirmFromProvider(ctx, *gated.PaymentReference)
	require.NoError(t, err)
	_, err = h.video.Initiate(ctx, professional, gated.ID)
	assert.NoError(t, err)

	chat := h.accepted(t, domain.ServiceTypeMessage)
	_, err = h.video.Initiate(ctx, professional, chat.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotVideoCall)

	pending := h.create(t, domain.ServiceTypeVideoCall)
	_, err = h.video.Initiate(ctx, professional, pending.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotAccepted)

	_, err = h.video.Initiate(ctx, client, chat.ID)
	assert.ErrorIs(t, err, appErrors.ErrWrongRole)
}

func TestNewRoomIDIsUniquePerAttempt(t *testing.T) {
	now := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := NewRoomID(7, now)
		assert.False(t, seen[id])
		seen[id] = true
		assert.True(t, strings.HasPrefix(id, "req7-"))
	}
}
