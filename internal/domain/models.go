package domain

import (
	"sort"
	"strings"
	"time"
)

// Roles known to the directory application.
const (
	RoleAdmin     = "admin"
	RoleBusiness  = "business"
	RoleModerator = "moderator"
)

// User represents an application user. Identity is the username; the chat
// subsystem consumes users but does not own them.
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	DisplayName    string    `json:"display_name,omitempty"`
	ProfileImg     string    `json:"profile_img,omitempty"`
	Email          *string   `json:"email,omitempty"`
	Role           string    `json:"role"`
	HashedPassword string    `json:"-"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Name returns the preferred display identity of the user.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// RoomKind distinguishes the single public room from two-party direct rooms.
type RoomKind string

const (
	RoomPublic RoomKind = "public"
	RoomDirect RoomKind = "direct"
)

// PublicRoomID is the well-known id of the public room. The room itself is
// created lazily on first append; every component treats the id as valid.
const PublicRoomID = "global"

// directRoomSep joins the two participant usernames of a direct room id.
// Usernames are validated at registration to never contain it.
const directRoomSep = "#"

// DirectRoomID returns the canonical room id for an unordered pair of
// usernames: the pair sorted lexicographically, joined by a fixed separator.
// DirectRoomID(a, b) == DirectRoomID(b, a) for all a, b.
func DirectRoomID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + directRoomSep + pair[1]
}

// ValidUsername reports whether a username may take part in room identity.
func ValidUsername(name string) bool {
	return name != "" && !strings.Contains(name, directRoomSep)
}

// Room is a chat room record. Participants is empty for the public room and
// holds exactly two distinct usernames for a direct room; the set never
// changes after creation.
type Room struct {
	ID             string    `json:"id"`
	Kind           RoomKind  `json:"kind"`
	Participants   []string  `json:"participants"`
	LastMessage    string    `json:"last_message"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// HasParticipant reports whether username is one of the room's participants.
func (r *Room) HasParticipant(username string) bool {
	for _, p := range r.Participants {
		if p == username {
			return true
		}
	}
	return false
}

// PublicRoom returns a fresh public-room record. Used both to lazily create
// the room on first append and to synthesize it for directory listings before
// anyone has posted.
func PublicRoom() *Room {
	return &Room{
		ID:   PublicRoomID,
		Kind: RoomPublic,
	}
}

// Message is an immutable chat message. Sender display fields are a snapshot
// taken at send time; later profile changes do not rewrite old messages.
type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	SenderImg  string    `json:"sender_img,omitempty"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// SortMessages orders messages by timestamp, with id as the tie-break, so
// every consumer renders the same sequence regardless of delivery batching.
func SortMessages(msgs []*Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// SortRooms orders rooms most-recently-active first, with id as the tie-break
// for a deterministic directory listing.
func SortRooms(rooms []*Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].LastActivityAt.Equal(rooms[j].LastActivityAt) {
			return rooms[i].LastActivityAt.After(rooms[j].LastActivityAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
}
