package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory_go/internal/domain"
	"directory_go/internal/service"
	"directory_go/internal/store/memory"
)

type msgDelivery struct {
	roomID string
	msgs   []*domain.Message
}

type testSink struct {
	roomLists chan []*domain.Room
	opened    chan service.RoomView
	messages  chan msgDelivery
}

func newTestSink() *testSink {
	return &testSink{
		roomLists: make(chan []*domain.Room, 32),
		opened:    make(chan service.RoomView, 32),
		messages:  make(chan msgDelivery, 32),
	}
}

func (s *testSink) RoomList(rooms []*domain.Room) { s.roomLists <- rooms }
func (s *testSink) RoomOpened(view service.RoomView) { s.opened <- view }
func (s *testSink) Messages(roomID string, msgs []*domain.Message) {
	s.messages <- msgDelivery{roomID: roomID, msgs: msgs}
}

func (s *testSink) nextOpened(t *testing.T) service.RoomView {
	t.Helper()
	select {
	case view := <-s.opened:
		return view
	case <-time.After(deliveryTimeout):
		t.Fatal("timed out waiting for room_opened")
		return service.RoomView{}
	}
}

func (s *testSink) nextMessages(t *testing.T) msgDelivery {
	t.Helper()
	select {
	case d := <-s.messages:
		return d
	case <-time.After(deliveryTimeout):
		t.Fatal("timed out waiting for messages")
		return msgDelivery{}
	}
}

func (s *testSink) nextRoomList(t *testing.T) []*domain.Room {
	t.Helper()
	select {
	case rooms := <-s.roomLists:
		return rooms
	case <-time.After(deliveryTimeout):
		t.Fatal("timed out waiting for room list")
		return nil
	}
}

type sessionFixture struct {
	rooms    *service.RoomService
	messages *service.MessageService
	dir      *service.DirectoryService
}

func newSessionFixture() sessionFixture {
	store := memory.NewStore()
	rooms := service.NewRoomService(store)
	return sessionFixture{
		rooms:    rooms,
		messages: service.NewMessageService(store, rooms),
		dir:      service.NewDirectoryService(store),
	}
}

func (f sessionFixture) session(viewer *domain.User, sink service.SessionSink) *service.ChatSession {
	return service.NewChatSession(viewer, f.rooms, f.messages, f.dir, sink)
}

func TestSessionStart(t *testing.T) {
	ctx := context.Background()
	alice := &domain.User{Username: "alice", Role: domain.RoleBusiness}

	fix := newSessionFixture()
	sink := newTestSink()
	sess := fix.session(alice, sink)
	defer sess.Close()

	require.NoError(t, sess.Start(ctx))

	view := sink.nextOpened(t)
	assert.Equal(t, domain.PublicRoomID, view.Room.ID)
	assert.Equal(t, service.ViewPublic, view.Viewpoint.Kind)
	assert.True(t, view.CanWrite)

	list := sink.nextRoomList(t)
	assert.Contains(t, roomIDs(list), domain.PublicRoomID)

	d := sink.nextMessages(t)
	assert.Equal(t, domain.PublicRoomID, d.roomID)
	assert.Empty(t, d.msgs)
}

func TestSessionRoomSwitch(t *testing.T) {
	ctx := context.Background()
	alice := &domain.User{Username: "alice", Role: domain.RoleBusiness}
	bob := &domain.User{Username: "bob", Role: domain.RoleBusiness}

	fix := newSessionFixture()
	direct, err := fix.rooms.ResolveDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	sink := newTestSink()
	sess := fix.session(alice, sink)
	defer sess.Close()

	require.NoError(t, sess.Start(ctx))
	sink.nextOpened(t)
	sink.nextMessages(t)

	require.NoError(t, sess.SelectRoom(ctx, direct.ID))
	view := sink.nextOpened(t)
	assert.Equal(t, direct.ID, view.Room.ID)
	assert.Equal(t, service.ViewParticipant, view.Viewpoint.Kind)
	assert.Equal(t, "bob", view.Viewpoint.DisplayName())

	d := sink.nextMessages(t)
	assert.Equal(t, direct.ID, d.roomID)

	// Activity in the abandoned room must not leak into this session.
	_, err = fix.messages.Append(ctx, domain.PublicRoomID, bob, "public noise")
	require.NoError(t, err)

	deadline := time.After(300 * time.Millisecond)
	for {
		select {
		case d := <-sink.messages:
			assert.Equal(t, direct.ID, d.roomID)
		case <-deadline:
			return
		}
	}
}

func TestSessionSend(t *testing.T) {
	ctx := context.Background()
	alice := &domain.User{Username: "alice", Role: domain.RoleBusiness}

	fix := newSessionFixture()
	direct, err := fix.rooms.ResolveDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	sink := newTestSink()
	sess := fix.session(alice, sink)
	defer sess.Close()

	require.NoError(t, sess.Start(ctx))
	require.NoError(t, sess.SelectRoom(ctx, direct.ID))

	_, err = sess.Send(ctx, "hello bob")
	require.NoError(t, err)

	for {
		d := sink.nextMessages(t)
		if d.roomID != direct.ID || len(d.msgs) == 0 {
			continue
		}
		assert.Equal(t, []string{"hello bob"}, texts(d.msgs))
		return
	}
}

func TestSessionOversight(t *testing.T) {
	ctx := context.Background()
	alice := &domain.User{Username: "alice", Role: domain.RoleBusiness}
	carol := &domain.User{Username: "carol", Role: domain.RoleBusiness}
	admin := &domain.User{Username: "boss", Role: domain.RoleAdmin}

	t.Run("DeniedToNonAdmins", func(t *testing.T) {
		fix := newSessionFixture()
		sink := newTestSink()
		sess := fix.session(alice, sink)
		defer sess.Close()

		require.NoError(t, sess.Start(ctx))
		assert.ErrorIs(t, sess.SetOversight(ctx, true), domain.ErrForbidden)
	})

	t.Run("WidensAndNarrowsDirectory", func(t *testing.T) {
		fix := newSessionFixture()
		foreign, err := fix.rooms.ResolveDirectRoom(ctx, "carol", "dave")
		require.NoError(t, err)
		_, err = fix.messages.Append(ctx, foreign.ID, carol, "between us")
		require.NoError(t, err)

		sink := newTestSink()
		sess := fix.session(admin, sink)
		defer sess.Close()

		require.NoError(t, sess.Start(ctx))
		list := sink.nextRoomList(t)
		assert.NotContains(t, roomIDs(list), foreign.ID)

		require.NoError(t, sess.SetOversight(ctx, true))
		list = sink.nextRoomList(t)
		assert.Contains(t, roomIDs(list), foreign.ID)

		// Oversight grants read, never write.
		require.NoError(t, sess.SelectRoom(ctx, foreign.ID))
		_, err = sess.Send(ctx, "caught you")
		assert.ErrorIs(t, err, domain.ErrForbidden)

		// The data itself is untouched by watching it.
		msgs, err := fix.messages.List(ctx, admin, foreign.ID, true)
		require.NoError(t, err)
		assert.Equal(t, []string{"between us"}, texts(msgs))
	})

	t.Run("FallsBackToPublicOnDisable", func(t *testing.T) {
		fix := newSessionFixture()
		foreign, err := fix.rooms.ResolveDirectRoom(ctx, "carol", "dave")
		require.NoError(t, err)

		sink := newTestSink()
		sess := fix.session(admin, sink)
		defer sess.Close()

		require.NoError(t, sess.Start(ctx))
		require.NoError(t, sess.SetOversight(ctx, true))
		require.NoError(t, sess.SelectRoom(ctx, foreign.ID))
		assert.Equal(t, foreign.ID, sess.ActiveRoomID())

		require.NoError(t, sess.SetOversight(ctx, false))
		assert.Equal(t, domain.PublicRoomID, sess.ActiveRoomID())
	})
}
