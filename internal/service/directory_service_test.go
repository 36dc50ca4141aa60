package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory_go/internal/domain"
	"directory_go/internal/service"
	"directory_go/internal/store/memory"
)

func newDirectoryFixture() (*service.DirectoryService, *service.RoomService, *service.MessageService) {
	store := memory.NewStore()
	rooms := service.NewRoomService(store)
	return service.NewDirectoryService(store), rooms, service.NewMessageService(store, rooms)
}

func TestDirectoryList(t *testing.T) {
	ctx := context.Background()
	alice := &domain.User{Username: "alice", Role: domain.RoleBusiness}
	admin := &domain.User{Username: "boss", Role: domain.RoleAdmin}

	t.Run("PublicRoomAlwaysPresent", func(t *testing.T) {
		dir, _, _ := newDirectoryFixture()

		rooms, err := dir.List(ctx, alice, service.ModeOwn)
		require.NoError(t, err)
		assert.Equal(t, []string{domain.PublicRoomID}, roomIDs(rooms))
	})

	t.Run("OwnModeExcludesForeignRooms", func(t *testing.T) {
		dir, roomSvc, _ := newDirectoryFixture()

		_, err := roomSvc.ResolveDirectRoom(ctx, "alice", "bob")
		require.NoError(t, err)
		_, err = roomSvc.ResolveDirectRoom(ctx, "carol", "dave")
		require.NoError(t, err)

		rooms, err := dir.List(ctx, alice, service.ModeOwn)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{domain.PublicRoomID, "alice#bob"}, roomIDs(rooms))
	})

	t.Run("AllModeForAdmins", func(t *testing.T) {
		dir, roomSvc, _ := newDirectoryFixture()

		_, err := roomSvc.ResolveDirectRoom(ctx, "alice", "bob")
		require.NoError(t, err)
		_, err = roomSvc.ResolveDirectRoom(ctx, "carol", "dave")
		require.NoError(t, err)

		rooms, err := dir.List(ctx, admin, service.ModeAll)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{domain.PublicRoomID, "alice#bob", "carol#dave"}, roomIDs(rooms))
	})

	t.Run("AllModeDeniedToNonAdmins", func(t *testing.T) {
		dir, _, _ := newDirectoryFixture()

		_, err := dir.List(ctx, alice, service.ModeAll)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("MostRecentActivityFirst", func(t *testing.T) {
		dir, roomSvc, msgSvc := newDirectoryFixture()
		bob := &domain.User{Username: "bob", Role: domain.RoleBusiness}

		first, err := roomSvc.ResolveDirectRoom(ctx, "alice", "bob")
		require.NoError(t, err)
		second, err := roomSvc.ResolveDirectRoom(ctx, "alice", "carol")
		require.NoError(t, err)

		_, err = msgSvc.Append(ctx, second.ID, alice, "older")
		require.NoError(t, err)
		_, err = msgSvc.Append(ctx, first.ID, bob, "newer")
		require.NoError(t, err)

		rooms, err := dir.List(ctx, alice, service.ModeOwn)
		require.NoError(t, err)
		require.NotEmpty(t, rooms)
		assert.Equal(t, first.ID, rooms[0].ID)
	})
}

func TestDirectorySubscribe(t *testing.T) {
	ctx := context.Background()
	alice := &domain.User{Username: "alice", Role: domain.RoleBusiness}
	admin := &domain.User{Username: "boss", Role: domain.RoleAdmin}

	t.Run("DeliversOnNewRoom", func(t *testing.T) {
		dir, roomSvc, _ := newDirectoryFixture()

		ch := make(chan []*domain.Room, 8)
		sub, err := dir.Subscribe(ctx, alice, service.ModeOwn, func(r []*domain.Room) { ch <- r })
		require.NoError(t, err)
		defer sub.Unsubscribe()

		assert.Equal(t, []string{domain.PublicRoomID}, roomIDs(recvRooms(t, ch)))

		_, err = roomSvc.ResolveDirectRoom(ctx, "alice", "bob")
		require.NoError(t, err)

		got := recvRooms(t, ch)
		assert.Contains(t, roomIDs(got), "alice#bob")
	})

	t.Run("NonAdminAllModeRejected", func(t *testing.T) {
		dir, _, _ := newDirectoryFixture()

		_, err := dir.Subscribe(ctx, alice, service.ModeAll, func([]*domain.Room) {})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("AdminAllModeSeesEverything", func(t *testing.T) {
		dir, roomSvc, _ := newDirectoryFixture()

		_, err := roomSvc.ResolveDirectRoom(ctx, "carol", "dave")
		require.NoError(t, err)

		ch := make(chan []*domain.Room, 8)
		sub, err := dir.Subscribe(ctx, admin, service.ModeAll, func(r []*domain.Room) { ch <- r })
		require.NoError(t, err)
		defer sub.Unsubscribe()

		got := recvRooms(t, ch)
		assert.ElementsMatch(t, []string{domain.PublicRoomID, "carol#dave"}, roomIDs(got))
	})
}
