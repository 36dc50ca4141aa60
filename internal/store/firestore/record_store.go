// Package firestore implements the record store on Cloud Firestore, matching
// the collections the production directory app already uses: a chat_rooms
// collection with a messages subcollection per room, previews denormalized
// onto the room document, and snapshot listeners for push delivery.
package firestore

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"directory_go/internal/domain"
)

const (
	roomsCollection    = "chat_rooms"
	messagesCollection = "messages"
	usersCollection    = "users"

	// watchRetryDelay paces listener restarts after stream errors.
	watchRetryDelay = 2 * time.Second
)

// Open creates a Firestore client from a service-account credentials file.
func Open(ctx context.Context, projectID, credentialsPath string) (*firestore.Client, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("open firestore: %w", err)
	}
	return client, nil
}

type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

var _ domain.RecordStore = (*Store)(nil)

// roomDoc uses the field names the existing web client reads and writes.
type roomDoc struct {
	Kind         string    `firestore:"type"`
	Participants []string  `firestore:"participants"`
	LastMessage  string    `firestore:"lastMessage"`
	LastActivity time.Time `firestore:"lastTimestamp"`
	CreatedAt    time.Time `firestore:"created"`
}

type messageDoc struct {
	SenderID   string    `firestore:"senderId"`
	SenderName string    `firestore:"senderName"`
	SenderImg  string    `firestore:"senderImg"`
	Text       string    `firestore:"text"`
	Timestamp  time.Time `firestore:"timestamp"`
}

func roomFromDoc(id string, d roomDoc) *domain.Room {
	return &domain.Room{
		ID:             id,
		Kind:           domain.RoomKind(d.Kind),
		Participants:   d.Participants,
		LastMessage:    d.LastMessage,
		LastActivityAt: d.LastActivity,
		CreatedAt:      d.CreatedAt,
	}
}

func messageFromDoc(id, roomID string, d messageDoc) *domain.Message {
	return &domain.Message{
		ID:         id,
		RoomID:     roomID,
		SenderID:   d.SenderID,
		SenderName: d.SenderName,
		SenderImg:  d.SenderImg,
		Text:       d.Text,
		Timestamp:  d.Timestamp,
	}
}

// storeErr folds transient gRPC failures into ErrStoreUnavailable so callers
// can decide to retry.
func storeErr(op string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrStoreUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Store) rooms() *firestore.CollectionRef {
	return s.client.Collection(roomsCollection)
}

func (s *Store) messages(roomID string) *firestore.CollectionRef {
	return s.rooms().Doc(roomID).Collection(messagesCollection)
}

func (s *Store) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	snap, err := s.rooms().Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, storeErr("get room", err)
	}

	var d roomDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return roomFromDoc(snap.Ref.ID, d), nil
}

func (s *Store) CreateRoomIfAbsent(ctx context.Context, room *domain.Room) (*domain.Room, error) {
	createdAt := room.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	lastActivity := room.LastActivityAt
	if lastActivity.IsZero() {
		lastActivity = createdAt
	}

	// Create fails with AlreadyExists when the document is present, which is
	// the conditional write both racing callers converge through.
	_, err := s.rooms().Doc(room.ID).Create(ctx, roomDoc{
		Kind:         string(room.Kind),
		Participants: room.Participants,
		LastMessage:  "",
		LastActivity: lastActivity,
		CreatedAt:    createdAt,
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return nil, storeErr("create room", err)
	}

	return s.GetRoom(ctx, room.ID)
}

func (s *Store) AppendMessage(ctx context.Context, roomID string, msg *domain.Message) (string, error) {
	roomRef := s.rooms().Doc(roomID)
	msgRef := s.messages(roomID).Doc(msg.ID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(roomRef); err != nil {
			if status.Code(err) == codes.NotFound {
				return domain.ErrRoomNotFound
			}
			return err
		}
		if err := tx.Create(msgRef, messageDoc{
			SenderID:   msg.SenderID,
			SenderName: msg.SenderName,
			SenderImg:  msg.SenderImg,
			Text:       msg.Text,
			Timestamp:  msg.Timestamp,
		}); err != nil {
			return err
		}
		// Preview rides in the same transaction as the message write.
		return tx.Update(roomRef, []firestore.Update{
			{Path: "lastMessage", Value: msg.Text},
			{Path: "lastTimestamp", Value: msg.Timestamp},
		})
	})
	if err != nil {
		if err == domain.ErrRoomNotFound {
			return "", err
		}
		return "", storeErr("append message", err)
	}
	return msg.ID, nil
}

func (s *Store) ListMessages(ctx context.Context, roomID string) ([]*domain.Message, error) {
	snaps, err := s.messages(roomID).OrderBy("timestamp", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, storeErr("list messages", err)
	}

	msgs := make([]*domain.Message, 0, len(snaps))
	for _, snap := range snaps {
		var d messageDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, messageFromDoc(snap.Ref.ID, roomID, d))
	}

	domain.SortMessages(msgs)
	return msgs, nil
}

func (s *Store) ListRooms(ctx context.Context, filter domain.RoomFilter) ([]*domain.Room, error) {
	var queries []firestore.Query
	if filter.Participant == "" {
		queries = append(queries, s.rooms().Query)
	} else {
		// Firestore cannot OR an array-contains clause with a kind match in
		// one query, so public rooms come from a second one.
		queries = append(queries,
			s.rooms().Where("participants", "array-contains", filter.Participant),
			s.rooms().Where("type", "==", string(domain.RoomPublic)),
		)
	}

	seen := make(map[string]struct{})
	var rooms []*domain.Room
	for _, q := range queries {
		snaps, err := q.Documents(ctx).GetAll()
		if err != nil {
			return nil, storeErr("list rooms", err)
		}
		for _, snap := range snaps {
			if _, ok := seen[snap.Ref.ID]; ok {
				continue
			}
			seen[snap.Ref.ID] = struct{}{}
			var d roomDoc
			if err := snap.DataTo(&d); err != nil {
				return nil, fmt.Errorf("decode room: %w", err)
			}
			rooms = append(rooms, roomFromDoc(snap.Ref.ID, d))
		}
	}

	domain.SortRooms(rooms)
	return rooms, nil
}

func (s *Store) SubscribeRoom(ctx context.Context, roomID string, fn func([]*domain.Message)) (domain.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	query := s.messages(roomID).OrderBy("timestamp", firestore.Asc)
	go s.watch(ctx, "messages "+roomID, func(ctx context.Context) error {
		iter := query.Snapshots(ctx)
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				return err
			}
			snaps, err := snap.Documents.GetAll()
			if err != nil {
				return err
			}
			msgs := make([]*domain.Message, 0, len(snaps))
			for _, doc := range snaps {
				var d messageDoc
				if err := doc.DataTo(&d); err != nil {
					continue
				}
				msgs = append(msgs, messageFromDoc(doc.Ref.ID, roomID, d))
			}
			domain.SortMessages(msgs)
			fn(msgs)
		}
	})

	return &subscription{cancel: cancel}, nil
}

func (s *Store) SubscribeRooms(ctx context.Context, filter domain.RoomFilter, fn func([]*domain.Room)) (domain.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	if filter.Participant == "" {
		go s.watch(ctx, "all rooms", func(ctx context.Context) error {
			return s.watchRoomQuery(ctx, s.rooms().Query, fn)
		})
		return &subscription{cancel: cancel}, nil
	}

	// Own-mode needs two listeners: the participant query plus the public
	// room document, merged into one delivery stream.
	m := &roomMerge{fn: fn}
	q := s.rooms().Where("participants", "array-contains", filter.Participant)
	go s.watch(ctx, "rooms for "+filter.Participant, func(ctx context.Context) error {
		return s.watchRoomQuery(ctx, q, m.setDirect)
	})
	go s.watch(ctx, "public room", func(ctx context.Context) error {
		iter := s.rooms().Doc(domain.PublicRoomID).Snapshots(ctx)
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				return err
			}
			if !snap.Exists() {
				m.setPublic(nil)
				continue
			}
			var d roomDoc
			if err := snap.DataTo(&d); err != nil {
				continue
			}
			m.setPublic(roomFromDoc(snap.Ref.ID, d))
		}
	})

	return &subscription{cancel: cancel}, nil
}

func (s *Store) watchRoomQuery(ctx context.Context, q firestore.Query, fn func([]*domain.Room)) error {
	iter := q.Snapshots(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err != nil {
			return err
		}
		snaps, err := snap.Documents.GetAll()
		if err != nil {
			return err
		}
		rooms := make([]*domain.Room, 0, len(snaps))
		for _, doc := range snaps {
			var d roomDoc
			if err := doc.DataTo(&d); err != nil {
				continue
			}
			rooms = append(rooms, roomFromDoc(doc.Ref.ID, d))
		}
		domain.SortRooms(rooms)
		fn(rooms)
	}
}

// watch keeps a snapshot listener alive until the context is cancelled,
// restarting it after stream errors.
func (s *Store) watch(ctx context.Context, name string, run func(context.Context) error) {
	for {
		err := run(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Printf("firestore: watch %s: %v (restarting)", name, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(watchRetryDelay):
		}
	}
}

// roomMerge combines the participant-query stream with the public-room
// stream. Nothing is delivered until the participant query has reported at
// least once, so the first delivery is already a complete directory.
type roomMerge struct {
	mu     sync.Mutex
	fn     func([]*domain.Room)
	direct []*domain.Room
	public *domain.Room
	seeded bool
}

func (m *roomMerge) setDirect(rooms []*domain.Room) {
	m.mu.Lock()
	m.direct = rooms
	m.seeded = true
	m.deliverLocked()
	m.mu.Unlock()
}

func (m *roomMerge) setPublic(room *domain.Room) {
	m.mu.Lock()
	m.public = room
	if m.seeded {
		m.deliverLocked()
	}
	m.mu.Unlock()
}

func (m *roomMerge) deliverLocked() {
	combined := make([]*domain.Room, 0, len(m.direct)+1)
	for _, r := range m.direct {
		if r.ID == domain.PublicRoomID {
			continue
		}
		combined = append(combined, r)
	}
	if m.public != nil {
		combined = append(combined, m.public)
	}
	domain.SortRooms(combined)
	m.fn(combined)
}

type subscription struct {
	once   sync.Once
	cancel context.CancelFunc
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}
