package service

import (
	"context"
	"testing"

	"carelink/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestIsStoredAndPushedToProfessional(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.tokens.Register(ctx, professional.UserID, "tok-pro", "android"))

	view := h.create(t, "in_person")

	h.push.mu.Lock()
	calls := append([]pushCall(nil), h.push.calls...)
	h.push.mu.Unlock()
	require.Len(t, calls, 1)
	assert.Equal(t, "tok-pro", calls[0].Token)
	assert.Equal(t, NotifNewRequest, calls[0].Type)

	notes := NewNotificationService(repository.NewNotificationRepository(h.db), h.tokens, nil)
	list, err := notes.List(ctx, professional.UserID, 20, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, NotifNewRequest, list[0].Type)
	assert.Contains(t, list[0].Data, itoa(view.ID))
	assert.Nil(t, list[0].ReadAt)

	require.NoError(t, notes.MarkRead(ctx, client.UserID, list[0].ID))
	list, _ = notes.List(ctx, professional.UserID, 20, 0)
	assert.Nil(t, list[0].ReadAt, "only the owner can mark it read")

	require.NoError(t, notes.MarkRead(ctx, professional.UserID, list[0].ID))
	list, _ = notes.List(ctx, professional.UserID, 20, 0)
	assert.NotNil(t, list[0].ReadAt)
}

func TestDeviceTokenFollowsLatestRegistration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.tokens.Register(ctx, professional.UserID, "shared", "ios"))
	require.NoError(t, h.tokens.Register(ctx, client.UserID, "shared", "ios"))

	pro, err := h.tokens.TokensForUser(ctx, professional.UserID)
	require.NoError(t, err)
	assert.Empty(t, pro)
	cli, err := h.tokens.TokensForUser(ctx, client.UserID)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared"}, cli)
}
