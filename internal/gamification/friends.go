package gamification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/teachme/backend/internal/apperror"
	"github.com/teachme/backend/internal/models"
)

const friendshipPending = "pending"

// SendFriendRequest creates a pending request from userID to friendID.
func (s *Service) SendFriendRequest(ctx context.Context, userID, friendID string) (*models.Friendship, error) {
	if friendID == userID {
		return nil, s.fail("friend_request", userID, ErrSelfFriendship)
	}

	var f *models.Friendship
	err := s.inTx(ctx, func(st *Store) error {
		if _, err := st.GetUser(ctx, friendID); err != nil {
			return err
		}
		existing, err := st.FindFriendship(ctx, userID, friendID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrFriendshipExists
		}

		f = &models.Friendship{
			ID:        uuid.NewString(),
			UserID:    userID,
			FriendID:  friendID,
			Status:    friendshipPending,
			CreatedAt: s.clock(),
		}
		if err := st.InsertFriendRequest(ctx, *f); err != nil {
			if s.db.Dialect.IsUniqueViolation(err) {
				return ErrFriendshipExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("friend_request", userID, err)
	}
	return f, nil
}

// RespondFriendRequest accepts or rejects a pending request addressed to userID.
func (s *Service) RespondFriendRequest(ctx context.Context, userID, friendshipID string, accept bool) error {
	err := s.inTx(ctx, func(st *Store) error {
		f, err := st.GetFriendship(ctx, friendshipID)
		if err != nil {
			return err
		}
		if f.FriendID != userID {
			return fmt.Errorf("not the recipient of this request: %w", apperror.ErrForbidden)
		}
		if f.Status != friendshipPending {
			return fmt.Errorf("request already processed: %w", apperror.ErrConflict)
		}
		if accept {
			return st.AcceptFriendship(ctx, friendshipID, s.clock())
		}
		return st.DeleteFriendship(ctx, friendshipID, userID)
	})
	return s.fail("friend_respond", userID, err)
}

func (s *Service) ListFriends(ctx context.Context, userID string) (*models.FriendsResponse, error) {
	resp, err := NewStore(s.db).ListFriends(ctx, userID)
	if err != nil {
		return nil, s.fail("list_friends", userID, err)
	}
	return resp, nil
}

func (s *Service) RemoveFriend(ctx context.Context, userID, friendshipID string) error {
	return s.fail("remove_friend", userID, NewStore(s.db).DeleteFriendship(ctx, friendshipID, userID))
}
