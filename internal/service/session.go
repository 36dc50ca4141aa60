package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"directory_go/internal/domain"
)

// RoomView is everything a client needs to render a freshly opened room.
type RoomView struct {
	Room      *domain.Room
	Viewpoint Viewpoint
	CanWrite  bool
}

// SessionSink receives the session's outbound pushes. Implementations must
// tolerate calls from multiple goroutines.
type SessionSink interface {
	RoomList(rooms []*domain.Room)
	RoomOpened(view RoomView)
	Messages(roomID string, msgs []*domain.Message)
}

const (
	defaultRetryAttempts = 4
	defaultRetryDelay    = 200 * time.Millisecond
)

// ChatSession is the view controller for one connected client: it tracks the
// active room and the oversight flag, holds exactly one directory and one
// room subscription at a time, and drops residual deliveries from rooms that
// are no longer active.
type ChatSession struct {
	viewer    *domain.User
	rooms     *RoomService
	messages  *MessageService
	directory *DirectoryService
	gate      AccessGate
	sink      SessionSink

	retryAttempts int
	retryDelay    time.Duration

	mu           sync.Mutex
	oversight    bool
	activeRoomID string
	roomGen      int
	dirGen       int
	msgSub       domain.Subscription
	dirSub       domain.Subscription
	closed       bool
}

func NewChatSession(viewer *domain.User, rooms *RoomService, messages *MessageService, directory *DirectoryService, sink SessionSink) *ChatSession {
	return &ChatSession{
		viewer:        viewer,
		rooms:         rooms,
		messages:      messages,
		directory:     directory,
		sink:          sink,
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
	}
}

// Viewer returns the authenticated user this session belongs to.
func (s *ChatSession) Viewer() *domain.User { return s.viewer }

// Oversight reports whether the session currently runs in oversight mode.
func (s *ChatSession) Oversight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.oversight
}

// ActiveRoomID returns the id of the currently open room.
func (s *ChatSession) ActiveRoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRoomID
}

// Start attaches the directory feed and opens the public room, the landing
// view every session begins in.
func (s *ChatSession) Start(ctx context.Context) error {
	if err := s.subscribeDirectory(ctx, ModeOwn); err != nil {
		return err
	}
	return s.SelectRoom(ctx, domain.PublicRoomID)
}

// SelectRoom switches the session to the given room. The previous room's
// subscription is torn down before the new one attaches, and any update from
// it still in flight is discarded.
func (s *ChatSession) SelectRoom(ctx context.Context, roomID string) error {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session closed")
	}
	if !s.gate.CanRead(s.viewer, room, s.oversight) {
		s.mu.Unlock()
		return fmt.Errorf("%w: no read access to room %s", domain.ErrForbidden, roomID)
	}

	if s.msgSub != nil {
		s.msgSub.Unsubscribe()
		s.msgSub = nil
	}
	s.roomGen++
	gen := s.roomGen
	s.activeRoomID = room.ID

	vp := ResolveViewpoint(s.viewer, room)
	s.sink.RoomOpened(RoomView{
		Room:      room,
		Viewpoint: vp,
		CanWrite:  s.gate.CanWrite(s.viewer, room),
	})
	oversight := s.oversight
	s.mu.Unlock()

	var sub domain.Subscription
	err = s.withRetry(ctx, func() error {
		var serr error
		sub, serr = s.messages.Subscribe(ctx, s.viewer, room.ID, oversight, func(msgs []*domain.Message) {
			s.mu.Lock()
			defer s.mu.Unlock()
			// A later SelectRoom or Close wins over anything still in flight.
			if s.closed || s.roomGen != gen {
				return
			}
			s.sink.Messages(room.ID, msgs)
		})
		return serr
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.roomGen != gen {
		sub.Unsubscribe()
		return nil
	}
	s.msgSub = sub
	return nil
}

// SetOversight toggles oversight mode. Only admins may enable it. The
// directory feed widens or narrows accordingly, and if the active room is no
// longer readable after narrowing the session falls back to the public room.
func (s *ChatSession) SetOversight(ctx context.Context, on bool) error {
	if on && !s.viewer.IsAdmin() {
		return fmt.Errorf("%w: oversight requires the admin role", domain.ErrForbidden)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session closed")
	}
	if s.oversight == on {
		s.mu.Unlock()
		return nil
	}
	s.oversight = on
	active := s.activeRoomID
	s.mu.Unlock()

	mode := ModeOwn
	if on {
		mode = ModeAll
	}
	if err := s.subscribeDirectory(ctx, mode); err != nil {
		return err
	}

	if active == "" {
		return nil
	}
	room, err := s.rooms.GetRoom(ctx, active)
	if err != nil {
		return err
	}
	if s.gate.CanRead(s.viewer, room, on) {
		// Re-open so the room subscription carries the new oversight flag.
		return s.SelectRoom(ctx, active)
	}
	return s.SelectRoom(ctx, domain.PublicRoomID)
}

// Send posts text to the active room.
func (s *ChatSession) Send(ctx context.Context, text string) (*domain.Message, error) {
	s.mu.Lock()
	active := s.activeRoomID
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return nil, errors.New("session closed")
	}
	if active == "" {
		return nil, fmt.Errorf("%w: no room selected", domain.ErrInvalidInput)
	}
	return s.messages.Append(ctx, active, s.viewer, text)
}

// OpenDirect resolves the direct room with the given counterpart and
// switches to it.
func (s *ChatSession) OpenDirect(ctx context.Context, other string) error {
	room, err := s.rooms.ResolveDirectRoom(ctx, s.viewer.Username, other)
	if err != nil {
		return err
	}
	return s.SelectRoom(ctx, room.ID)
}

// Close tears down both subscriptions. Safe to call more than once.
func (s *ChatSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.msgSub != nil {
		s.msgSub.Unsubscribe()
		s.msgSub = nil
	}
	if s.dirSub != nil {
		s.dirSub.Unsubscribe()
		s.dirSub = nil
	}
}

func (s *ChatSession) subscribeDirectory(ctx context.Context, mode DirectoryMode) error {
	s.mu.Lock()
	if s.dirSub != nil {
		s.dirSub.Unsubscribe()
		s.dirSub = nil
	}
	s.dirGen++
	gen := s.dirGen
	s.mu.Unlock()

	var sub domain.Subscription
	err := s.withRetry(ctx, func() error {
		var serr error
		sub, serr = s.directory.Subscribe(ctx, s.viewer, mode, func(rooms []*domain.Room) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.closed || s.dirGen != gen {
				return
			}
			s.sink.RoomList(rooms)
		})
		return serr
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.dirGen != gen {
		sub.Unsubscribe()
		return nil
	}
	s.dirSub = sub
	return nil
}

// withRetry re-runs fn on transient store outages with a doubling delay.
// Permanent errors surface immediately.
func (s *ChatSession) withRetry(ctx context.Context, fn func() error) error {
	delay := s.retryDelay
	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if err = fn(); err == nil || !errors.Is(err, domain.ErrStoreUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
