package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"directory_go/internal/domain"
)

func TestDirectRoomID(t *testing.T) {
	t.Run("OrderIndependent", func(t *testing.T) {
		assert.Equal(t, domain.DirectRoomID("alice", "bob"), domain.DirectRoomID("bob", "alice"))
	})

	t.Run("DistinctPairsDistinctIDs", func(t *testing.T) {
		assert.NotEqual(t, domain.DirectRoomID("alice", "bob"), domain.DirectRoomID("alice", "carol"))
	})

	t.Run("SortedJoin", func(t *testing.T) {
		assert.Equal(t, "alice#bob", domain.DirectRoomID("bob", "alice"))
	})
}

func TestValidUsername(t *testing.T) {
	assert.True(t, domain.ValidUsername("alice"))
	assert.False(t, domain.ValidUsername(""))
	assert.False(t, domain.ValidUsername("ali#ce"))
}

func TestSortRooms(t *testing.T) {
	old := &domain.Room{ID: "a#b", LastActivityAt: time.Now().Add(-time.Hour)}
	fresh := &domain.Room{ID: "c#d", LastActivityAt: time.Now()}

	rooms := []*domain.Room{old, fresh}
	domain.SortRooms(rooms)

	assert.Equal(t, "c#d", rooms[0].ID)
	assert.Equal(t, "a#b", rooms[1].ID)
}

func TestSortMessages(t *testing.T) {
	now := time.Now()
	late := &domain.Message{ID: "2", Timestamp: now.Add(time.Second)}
	early := &domain.Message{ID: "1", Timestamp: now}

	msgs := []*domain.Message{late, early}
	domain.SortMessages(msgs)

	assert.Equal(t, "1", msgs[0].ID)
	assert.Equal(t, "2", msgs[1].ID)
}

func TestRoomHasParticipant(t *testing.T) {
	room := &domain.Room{Kind: domain.RoomDirect, Participants: []string{"alice", "bob"}}
	assert.True(t, room.HasParticipant("alice"))
	assert.False(t, room.HasParticipant("carol"))
}
