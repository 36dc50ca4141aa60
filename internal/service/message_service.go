package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"directory_go/internal/domain"
)

// MessageService is the per-room message stream: validated, access-gated
// appends and live full-list subscriptions.
type MessageService struct {
	store domain.RecordStore
	rooms *RoomService
	gate  AccessGate
}

func NewMessageService(store domain.RecordStore, rooms *RoomService) *MessageService {
	return &MessageService{store: store, rooms: rooms}
}

// Append validates, gates, and persists one message. The sender's display
// identity is snapshotted onto the message; later profile edits never touch
// it. Blank text (after trimming) is rejected before any store interaction.
func (s *MessageService) Append(ctx context.Context, roomID string, sender *domain.User, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrEmptyMessage
	}

	var room *domain.Room
	var err error
	if roomID == domain.PublicRoomID {
		// First public post creates the room.
		room, err = s.store.CreateRoomIfAbsent(ctx, domain.PublicRoom())
	} else {
		room, err = s.store.GetRoom(ctx, roomID)
	}
	if err != nil {
		return nil, err
	}

	if !s.gate.CanWrite(sender, room) {
		return nil, fmt.Errorf("%w: no write access to room %s", domain.ErrForbidden, roomID)
	}

	msg := &domain.Message{
		ID:         uuid.NewString(),
		RoomID:     room.ID,
		SenderID:   sender.Username,
		SenderName: sender.Name(),
		SenderImg:  sender.ProfileImg,
		Text:       text,
		Timestamp:  time.Now().UTC(),
	}

	if _, err := s.store.AppendMessage(ctx, room.ID, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Subscribe attaches a live feed of the room's messages: the full ordered
// list on attach, then refreshed lists as messages arrive.
func (s *MessageService) Subscribe(ctx context.Context, viewer *domain.User, roomID string, oversight bool, fn func([]*domain.Message)) (domain.Subscription, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanRead(viewer, room, oversight) {
		return nil, fmt.Errorf("%w: no read access to room %s", domain.ErrForbidden, roomID)
	}
	return s.store.SubscribeRoom(ctx, room.ID, fn)
}

// List returns the room's messages once, in render order.
func (s *MessageService) List(ctx context.Context, viewer *domain.User, roomID string, oversight bool) ([]*domain.Message, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanRead(viewer, room, oversight) {
		return nil, fmt.Errorf("%w: no read access to room %s", domain.ErrForbidden, roomID)
	}
	return s.store.ListMessages(ctx, room.ID)
}
