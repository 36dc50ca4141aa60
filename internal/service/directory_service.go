package service

import (
	"context"
	"fmt"

	"directory_go/internal/domain"
)

// DirectoryMode selects which rooms a directory subscription delivers.
type DirectoryMode string

const (
	// ModeOwn delivers the viewer's own rooms plus the public room.
	ModeOwn DirectoryMode = "own"
	// ModeAll delivers every room in the system. Admin only.
	ModeAll DirectoryMode = "all"
)

// DirectoryService projects the live, per-viewer room list: re-delivered in
// full whenever any member room's activity changes, most-recently-active
// first, public room always present.
type DirectoryService struct {
	store domain.RecordStore
}

func NewDirectoryService(store domain.RecordStore) *DirectoryService {
	return &DirectoryService{store: store}
}

func (s *DirectoryService) filterFor(viewer *domain.User, mode DirectoryMode) (domain.RoomFilter, error) {
	switch mode {
	case ModeAll:
		if !viewer.IsAdmin() {
			return domain.RoomFilter{}, fmt.Errorf("%w: directory oversight requires the admin role", domain.ErrForbidden)
		}
		return domain.RoomFilter{}, nil
	case ModeOwn:
		if viewer == nil {
			return domain.RoomFilter{}, domain.ErrUnauthorized
		}
		return domain.RoomFilter{Participant: viewer.Username}, nil
	default:
		return domain.RoomFilter{}, fmt.Errorf("%w: unknown directory mode %q", domain.ErrInvalidInput, mode)
	}
}

// Subscribe attaches a live room-list feed for the viewer in the given mode.
func (s *DirectoryService) Subscribe(ctx context.Context, viewer *domain.User, mode DirectoryMode, fn func([]*domain.Room)) (domain.Subscription, error) {
	filter, err := s.filterFor(viewer, mode)
	if err != nil {
		return nil, err
	}
	return s.store.SubscribeRooms(ctx, filter, func(rooms []*domain.Room) {
		fn(withPublicRoom(rooms))
	})
}

// List is the one-shot form of Subscribe, for non-push clients.
func (s *DirectoryService) List(ctx context.Context, viewer *domain.User, mode DirectoryMode) ([]*domain.Room, error) {
	filter, err := s.filterFor(viewer, mode)
	if err != nil {
		return nil, err
	}
	rooms, err := s.store.ListRooms(ctx, filter)
	if err != nil {
		return nil, err
	}
	return withPublicRoom(rooms), nil
}

// withPublicRoom guarantees the public room appears even before its lazy
// creation, synthesizing an empty record when the store has none.
func withPublicRoom(rooms []*domain.Room) []*domain.Room {
	for _, r := range rooms {
		if r.ID == domain.PublicRoomID {
			return rooms
		}
	}
	rooms = append(rooms, domain.PublicRoom())
	domain.SortRooms(rooms)
	return rooms
}
