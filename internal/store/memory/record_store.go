// Package memory implements the record store on in-process maps. It is the
// development driver and the fixture the service tests run against; change
// notification goes through the same pubsub broker as the sqlite driver.
package memory

import (
	"context"
	"sync"
	"time"

	"directory_go/internal/domain"
	"directory_go/internal/store/pubsub"
)

const roomsTopic = "rooms"

func roomTopic(id string) string { return "room/" + id }

type Store struct {
	mu       sync.RWMutex
	rooms    map[string]*domain.Room
	messages map[string][]*domain.Message
	broker   *pubsub.Broker
}

func NewStore() *Store {
	return &Store{
		rooms:    make(map[string]*domain.Room),
		messages: make(map[string][]*domain.Message),
		broker:   pubsub.NewBroker(),
	}
}

var _ domain.RecordStore = (*Store)(nil)

func cloneRoom(r *domain.Room) *domain.Room {
	c := *r
	c.Participants = append([]string(nil), r.Participants...)
	return &c
}

func cloneMessages(msgs []*domain.Message) []*domain.Message {
	out := make([]*domain.Message, len(msgs))
	for i, m := range msgs {
		c := *m
		out[i] = &c
	}
	return out
}

func (s *Store) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return cloneRoom(r), nil
}

func (s *Store) CreateRoomIfAbsent(ctx context.Context, room *domain.Room) (*domain.Room, error) {
	s.mu.Lock()
	if existing, ok := s.rooms[room.ID]; ok {
		c := cloneRoom(existing)
		s.mu.Unlock()
		return c, nil
	}

	r := cloneRoom(room)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.LastActivityAt.IsZero() {
		r.LastActivityAt = r.CreatedAt
	}
	s.rooms[r.ID] = r
	c := cloneRoom(r)
	s.mu.Unlock()

	s.broker.Publish(roomsTopic)
	return c, nil
}

func (s *Store) AppendMessage(ctx context.Context, roomID string, msg *domain.Message) (string, error) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return "", domain.ErrRoomNotFound
	}

	m := *msg
	m.RoomID = roomID
	s.messages[roomID] = append(s.messages[roomID], &m)

	// Preview and message land in one critical section so no reader sees a
	// newer message paired with a stale preview.
	room.LastMessage = m.Text
	room.LastActivityAt = m.Timestamp
	s.mu.Unlock()

	s.broker.Publish(roomTopic(roomID))
	s.broker.Publish(roomsTopic)
	return m.ID, nil
}

func (s *Store) ListMessages(ctx context.Context, roomID string) ([]*domain.Message, error) {
	s.mu.RLock()
	msgs := cloneMessages(s.messages[roomID])
	s.mu.RUnlock()

	domain.SortMessages(msgs)
	return msgs, nil
}

func (s *Store) ListRooms(ctx context.Context, filter domain.RoomFilter) ([]*domain.Room, error) {
	s.mu.RLock()
	var rooms []*domain.Room
	for _, r := range s.rooms {
		if filter.Matches(r) {
			rooms = append(rooms, cloneRoom(r))
		}
	}
	s.mu.RUnlock()

	domain.SortRooms(rooms)
	return rooms, nil
}

func (s *Store) SubscribeRoom(ctx context.Context, roomID string, fn func([]*domain.Message)) (domain.Subscription, error) {
	return s.subscribe(ctx, roomTopic(roomID), func() {
		msgs, err := s.ListMessages(context.Background(), roomID)
		if err == nil {
			fn(msgs)
		}
	})
}

func (s *Store) SubscribeRooms(ctx context.Context, filter domain.RoomFilter, fn func([]*domain.Room)) (domain.Subscription, error) {
	return s.subscribe(ctx, roomsTopic, func() {
		rooms, err := s.ListRooms(context.Background(), filter)
		if err == nil {
			fn(rooms)
		}
	})
}

// subscribe delivers the current state once, then again after every change
// signal, all from a single goroutine so deliveries never interleave.
func (s *Store) subscribe(ctx context.Context, topic string, deliver func()) (domain.Subscription, error) {
	l := s.broker.Subscribe(topic)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer l.Close()
		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.C:
				deliver()
			}
		}
	}()

	return &subscription{cancel: cancel}, nil
}

type subscription struct {
	once   sync.Once
	cancel context.CancelFunc
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}
