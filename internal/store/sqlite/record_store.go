package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"directory_go/internal/domain"
	"directory_go/internal/store/pubsub"
)

const roomsTopic = "rooms"

func roomTopic(id string) string { return "room/" + id }

// Store implements domain.RecordStore on SQLite. Durable state lives in the
// database; change notification is in-process via the pubsub broker, which is
// sufficient for the single-server deployment this driver targets.
type Store struct {
	db     *sql.DB
	broker *pubsub.Broker
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, broker: pubsub.NewBroker()}
}

var _ domain.RecordStore = (*Store)(nil)

func (s *Store) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	r := &domain.Room{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, last_message, last_activity_at, created_at
		FROM chat_rooms
		WHERE id = ?
	`, id).Scan(&r.ID, &r.Kind, &r.LastMessage, &r.LastActivityAt, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	if r.Participants, err = s.roomParticipants(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) roomParticipants(ctx context.Context, roomID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username FROM room_participants WHERE room_id = ? ORDER BY username
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("room participants: %w", err)
	}
	defer rows.Close()

	var participants []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *Store) CreateRoomIfAbsent(ctx context.Context, room *domain.Room) (*domain.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	createdAt := room.CreatedAt
	if createdAt.IsZero() {
		createdAt = nowUTC()
	}
	lastActivity := room.LastActivityAt
	if lastActivity.IsZero() {
		lastActivity = createdAt
	}

	// INSERT OR IGNORE is the conditional write: under concurrent first
	// contact for the same pair, exactly one insert wins and both callers
	// read back the same row.
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO chat_rooms (id, kind, last_message, last_activity_at, created_at)
		VALUES (?, ?, '', ?, ?)
	`, room.ID, room.Kind, lastActivity, createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}
	inserted, _ := res.RowsAffected()

	if inserted > 0 {
		for _, p := range room.Participants {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO room_participants (room_id, username)
				VALUES (?, ?)
			`, room.ID, p); err != nil {
				return nil, fmt.Errorf("insert participant: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	if inserted > 0 {
		s.broker.Publish(roomsTopic)
	}
	return s.GetRoom(ctx, room.ID)
}

func (s *Store) AppendMessage(ctx context.Context, roomID string, msg *domain.Message) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, room_id, sender_id, sender_name, sender_img, text, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, roomID, msg.SenderID, msg.SenderName, msg.SenderImg, msg.Text, msg.Timestamp); err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}

	// Same transaction as the insert: preview and message are one write.
	res, err := tx.ExecContext(ctx, `
		UPDATE chat_rooms SET last_message = ?, last_activity_at = ? WHERE id = ?
	`, msg.Text, msg.Timestamp, roomID)
	if err != nil {
		return "", fmt.Errorf("update room preview: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", domain.ErrRoomNotFound
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	s.broker.Publish(roomTopic(roomID))
	s.broker.Publish(roomsTopic)
	return msg.ID, nil
}

func (s *Store) ListMessages(ctx context.Context, roomID string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, sender_id, sender_name, sender_img, text, timestamp
		FROM chat_messages
		WHERE room_id = ?
		ORDER BY timestamp, id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.SenderImg, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	domain.SortMessages(msgs)
	return msgs, nil
}

func (s *Store) ListRooms(ctx context.Context, filter domain.RoomFilter) ([]*domain.Room, error) {
	query := `
		SELECT id, kind, last_message, last_activity_at, created_at
		FROM chat_rooms
	`
	args := []any{}
	if filter.Participant != "" {
		query += `
		WHERE kind = 'public'
		   OR id IN (SELECT room_id FROM room_participants WHERE username = ?)
		`
		args = append(args, filter.Participant)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*domain.Room
	for rows.Next() {
		r := &domain.Room{}
		if err := rows.Scan(&r.ID, &r.Kind, &r.LastMessage, &r.LastActivityAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range rooms {
		if r.Participants, err = s.roomParticipants(ctx, r.ID); err != nil {
			return nil, err
		}
	}

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

// subscribe re-reads the store on every change signal. The broker coalesces
// bursts, so a subscriber sees the latest state rather than each
// intermediate one.
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

func nowUTC() time.Time {
	return time.Now().UTC()
}
