package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory_go/internal/domain"
	"directory_go/internal/store/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))
	return db
}

func directRoom(a, b string) *domain.Room {
	return &domain.Room{
		ID:           domain.DirectRoomID(a, b),
		Kind:         domain.RoomDirect,
		Participants: []string{a, b},
	}
}

func message(text string) *domain.Message {
	return &domain.Message{
		ID:        uuid.NewString(),
		SenderID:  "alice",
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

func TestRoomRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := sqlite.NewStore(openTestDB(t))

	created, err := store.CreateRoomIfAbsent(ctx, directRoom("alice", "bob"))
	require.NoError(t, err)
	assert.Equal(t, "alice#bob", created.ID)
	assert.Equal(t, []string{"alice", "bob"}, created.Participants)

	got, err := store.GetRoom(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, domain.RoomDirect, got.Kind)
	assert.Equal(t, []string{"alice", "bob"}, got.Participants)
}

func TestCreateRoomIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := sqlite.NewStore(openTestDB(t))

	first, err := store.CreateRoomIfAbsent(ctx, directRoom("alice", "bob"))
	require.NoError(t, err)

	second, err := store.CreateRoomIfAbsent(ctx, directRoom("bob", "alice"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix())
}

func TestGetRoomMissing(t *testing.T) {
	store := sqlite.NewStore(openTestDB(t))

	_, err := store.GetRoom(context.Background(), "nobody#nothere")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestAppendMessage(t *testing.T) {
	ctx := context.Background()
	store := sqlite.NewStore(openTestDB(t))

	t.Run("MissingRoom", func(t *testing.T) {
		_, err := store.AppendMessage(ctx, "nobody#nothere", message("hi"))
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	})

	t.Run("UpdatesPreview", func(t *testing.T) {
		room, err := store.CreateRoomIfAbsent(ctx, directRoom("alice", "bob"))
		require.NoError(t, err)

		_, err = store.AppendMessage(ctx, room.ID, message("first"))
		require.NoError(t, err)
		last := message("latest")
		_, err = store.AppendMessage(ctx, room.ID, last)
		require.NoError(t, err)

		got, err := store.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, "latest", got.LastMessage)
		assert.Equal(t, last.Timestamp.Unix(), got.LastActivityAt.Unix())

		msgs, err := store.ListMessages(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "first", msgs[0].Text)
		assert.Equal(t, "latest", msgs[1].Text)
	})
}

func TestListRoomsFilter(t *testing.T) {
	ctx := context.Background()
	store := sqlite.NewStore(openTestDB(t))

	_, err := store.CreateRoomIfAbsent(ctx, directRoom("alice", "bob"))
	require.NoError(t, err)
	_, err = store.CreateRoomIfAbsent(ctx, directRoom("carol", "dave"))
	require.NoError(t, err)
	_, err = store.CreateRoomIfAbsent(ctx, domain.PublicRoom())
	require.NoError(t, err)

	t.Run("ParticipantSeesOwnAndPublic", func(t *testing.T) {
		rooms, err := store.ListRooms(ctx, domain.RoomFilter{Participant: "alice"})
		require.NoError(t, err)

		ids := make([]string, 0, len(rooms))
		for _, r := range rooms {
			ids = append(ids, r.ID)
		}
		assert.ElementsMatch(t, []string{"alice#bob", domain.PublicRoomID}, ids)
	})

	t.Run("ZeroFilterSeesAll", func(t *testing.T) {
		rooms, err := store.ListRooms(ctx, domain.RoomFilter{})
		require.NoError(t, err)
		assert.Len(t, rooms, 3)
	})
}

func TestSubscribeRoomDeliversChanges(t *testing.T) {
	ctx := context.Background()
	store := sqlite.NewStore(openTestDB(t))

	room, err := store.CreateRoomIfAbsent(ctx, directRoom("alice", "bob"))
	require.NoError(t, err)

	ch := make(chan []*domain.Message, 8)
	sub, err := store.SubscribeRoom(ctx, room.ID, func(msgs []*domain.Message) { ch <- msgs })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case msgs := <-ch:
		assert.Empty(t, msgs)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial delivery")
	}

	_, err = store.AppendMessage(ctx, room.ID, message("ping"))
	require.NoError(t, err)

	select {
	case msgs := <-ch:
		require.Len(t, msgs, 1)
		assert.Equal(t, "ping", msgs[0].Text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change delivery")
	}
}

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewUserRepo(openTestDB(t))

	alice := &domain.User{
		Username:       "alice",
		DisplayName:    "Alice",
		Role:           domain.RoleBusiness,
		HashedPassword: "hash",
		IsActive:       true,
	}

	require.NoError(t, repo.Create(ctx, alice))
	assert.NotEmpty(t, alice.ID)

	t.Run("DuplicateUsername", func(t *testing.T) {
		err := repo.Create(ctx, &domain.User{Username: "alice", Role: domain.RoleBusiness})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("GetByUsername", func(t *testing.T) {
		got, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "Alice", got.DisplayName)
		assert.Equal(t, domain.RoleBusiness, got.Role)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := repo.GetByUsername(ctx, "ghost")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ListActive", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &domain.User{
			Username: "bob",
			Role:     domain.RoleBusiness,
			IsActive: true,
		}))

		users, err := repo.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "alice", users[0].Username)
		assert.Equal(t, "bob", users[1].Username)
	})
}
