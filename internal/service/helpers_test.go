package service_test

import (
	"testing"
	"time"

	"directory_go/internal/domain"
)

const deliveryTimeout = 2 * time.Second

// recvMsgs waits for the next message-list delivery or fails the test.
func recvMsgs(t *testing.T, ch <-chan []*domain.Message) []*domain.Message {
	t.Helper()
	select {
	case msgs := <-ch:
		return msgs
	case <-time.After(deliveryTimeout):
		t.Fatal("timed out waiting for message delivery")
		return nil
	}
}

// recvRooms waits for the next room-list delivery or fails the test.
func recvRooms(t *testing.T, ch <-chan []*domain.Room) []*domain.Room {
	t.Helper()
	select {
	case rooms := <-ch:
		return rooms
	case <-time.After(deliveryTimeout):
		t.Fatal("timed out waiting for room delivery")
		return nil
	}
}

// texts projects the message list onto its text column for compact asserts.
func texts(msgs []*domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

// roomIDs projects the room list onto its ids.
func roomIDs(rooms []*domain.Room) []string {
	out := make([]string, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.ID)
	}
	return out
}
