package gamification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teachme/backend/internal/apperror"
)

func TestFriendRequestLifecycle(t *testing.T) {
	f := newFixture(t, "")
	f.addStudent("s1", "Ada Lovelace", "", 0)
	f.addStudent("s2", "Grace Hopper", "", 0)
	f.award("s2", 120)

	req, err := f.svc.SendFriendRequest(f.ctx, "s1", "s2")
	require.NoError(t, err)
	assert.Equal(t, "pending", req.Status)

	sent, err := f.svc.ListFriends(f.ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sent.PendingSent, 1)
	assert.Equal(t, "Grace H.", sent.PendingSent[0].DisplayName)
	assert.Empty(t, sent.Friends)

	received, err := f.svc.ListFriends(f.ctx, "s2")
	require.NoError(t, err)
	require.Len(t, received.PendingReceived, 1)
	assert.Equal(t, "s1", received.PendingReceived[0].UserID)

	// Only the recipient may answer.
	err = f.svc.RespondFriendRequest(f.ctx, "s1", req.ID, true)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	require.NoError(t, f.svc.RespondFriendRequest(f.ctx, "s2", req.ID, true))
	err = f.svc.RespondFriendRequest(f.ctx, "s2", req.ID, true)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	friends, err := f.svc.ListFriends(f.ctx, "s1")
	require.NoError(t, err)
	require.Len(t, friends.Friends, 1)
	assert.Equal(t, "s2", friends.Friends[0].UserID)
	assert.EqualValues(t, 120, friends.Friends[0].TotalXP)
	assert.Equal(t, 2, friends.Friends[0].Level)
	assert.Empty(t, friends.PendingSent)

	_, err = f.svc.SendFriendRequest(f.ctx, "s2", "s1")
	assert.ErrorIs(t, err, ErrFriendshipExists)

	require.NoError(t, f.svc.RemoveFriend(f.ctx, "s2", req.ID))
	assert.ErrorIs(t, f.svc.RemoveFriend(f.ctx, "s2", req.ID), ErrFriendshipNotFound)
}

func TestFriendRequestRejections(t *testing.T) {
	f := newFixture(t, "")
	f.addStudent("s1", "Ada Lovelace", "", 0)
	f.addStudent("s2", "Grace Hopper", "", 0)

	_, err := f.svc.SendFriendRequest(f.ctx, "s1", "s1")
	assert.ErrorIs(t, err, ErrSelfFriendship)

	_, err = f.svc.SendFriendRequest(f.ctx, "s1", "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)

	req, err := f.svc.SendFriendRequest(f.ctx, "s1", "s2")
	require.NoError(t, err)
	require.NoError(t, f.svc.RespondFriendRequest(f.ctx, "s2", req.ID, false))

	resp, err := f.svc.ListFriends(f.ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, resp.PendingReceived)

	// A rejected request can be sent again.
	_, err = f.svc.SendFriendRequest(f.ctx, "s1", "s2")
	assert.NoError(t, err)

	err = f.svc.RespondFriendRequest(f.ctx, "s2", "missing", true)
	assert.ErrorIs(t, err, ErrFriendshipNotFound)
}
