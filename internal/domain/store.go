package domain

import (
	"context"
)

// Subscription is a live change feed handle. Unsubscribe stops further
// deliveries and is safe to call more than once.
type Subscription interface {
	Unsubscribe()
}

// RoomFilter selects rooms for listing and subscription.
//
// The zero filter matches every room. A filter with Participant set matches
// rooms containing that participant plus every public room, so a viewer's
// directory always includes the public room without a separate lookup.
type RoomFilter struct {
	Participant string
}

// Matches reports whether the filter selects the given room.
func (f RoomFilter) Matches(r *Room) bool {
	if f.Participant == "" {
		return true
	}
	return r.Kind == RoomPublic || r.HasParticipant(f.Participant)
}

// RecordStore is the durable room/message collaborator. Implementations must
// make CreateRoomIfAbsent atomic with respect to concurrent callers and must
// refresh the owning room's preview fields in the same logical write as
// AppendMessage, so a subscriber never sees a newer message paired with a
// stale preview.
//
// Subscriptions deliver the full current state on attach and again after each
// change. Deliveries for one subscription are serialized; intermediate states
// may be coalesced. Callbacks run on store-owned goroutines and must not
// block indefinitely.
type RecordStore interface {
	GetRoom(ctx context.Context, id string) (*Room, error)
	CreateRoomIfAbsent(ctx context.Context, room *Room) (*Room, error)
	AppendMessage(ctx context.Context, roomID string, msg *Message) (string, error)
	ListMessages(ctx context.Context, roomID string) ([]*Message, error)
	ListRooms(ctx context.Context, filter RoomFilter) ([]*Room, error)
	SubscribeRoom(ctx context.Context, roomID string, fn func([]*Message)) (Subscription, error)
	SubscribeRooms(ctx context.Context, filter RoomFilter, fn func([]*Room)) (Subscription, error)
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	ListActive(ctx context.Context) ([]*User, error)
}
