package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"directory_go/internal/domain"
)

// RoomService owns room identity: the canonical mapping from a user pair to
// a direct room, lazy creation on first use, and public-room synthesis.
type RoomService struct {
	store domain.RecordStore
}

func NewRoomService(store domain.RecordStore) *RoomService {
	return &RoomService{store: store}
}

// ResolveDirectRoom returns the single direct room for the unordered pair
// {a, b}, creating it if absent. Argument order never matters, and two
// concurrent first contacts for the same pair converge on one room via the
// store's conditional create.
func (s *RoomService) ResolveDirectRoom(ctx context.Context, a, b string) (*domain.Room, error) {
	if !domain.ValidUsername(a) || !domain.ValidUsername(b) {
		return nil, fmt.Errorf("%w: usernames must be non-empty", domain.ErrInvalidParticipants)
	}
	if a == b {
		return nil, fmt.Errorf("%w: cannot open a direct room with yourself", domain.ErrInvalidParticipants)
	}

	participants := []string{a, b}
	sort.Strings(participants)

	room, err := s.store.CreateRoomIfAbsent(ctx, &domain.Room{
		ID:           domain.DirectRoomID(a, b),
		Kind:         domain.RoomDirect,
		Participants: participants,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve direct room: %w", err)
	}
	return room, nil
}

// GetRoom fetches a room by id. The public room is always resolvable: when
// nobody has posted yet it is synthesized rather than created.
func (s *RoomService) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	room, err := s.store.GetRoom(ctx, id)
	if errors.Is(err, domain.ErrRoomNotFound) && id == domain.PublicRoomID {
		return domain.PublicRoom(), nil
	}
	return room, err
}
