package ws

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"directory_go/internal/domain"
	"directory_go/internal/security"
	"directory_go/internal/service"
)

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// connSink pushes session updates onto a single WebSocket connection. The
// session delivers from several goroutines, so writes are serialized.
type connSink struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	viewer *domain.User
}

func (s *connSink) write(payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteJSON(payload); err != nil {
		s.conn.Close()
	}
}

func (s *connSink) roomPayload(room *domain.Room) map[string]any {
	var gate service.AccessGate
	vp := service.ResolveViewpoint(s.viewer, room)
	return map[string]any{
		"id":               room.ID,
		"kind":             string(room.Kind),
		"participants":     room.Participants,
		"display_name":     vp.DisplayName(),
		"can_write":        gate.CanWrite(s.viewer, room),
		"last_message":     room.LastMessage,
		"last_activity_at": room.LastActivityAt,
	}
}

func (s *connSink) RoomList(rooms []*domain.Room) {
	out := make([]map[string]any, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, s.roomPayload(room))
	}
	s.write(map[string]any{
		"type":  "rooms",
		"rooms": out,
	})
}

func (s *connSink) RoomOpened(view service.RoomView) {
	s.write(map[string]any{
		"type":         "room_opened",
		"room":         s.roomPayload(view.Room),
		"viewpoint":    string(view.Viewpoint.Kind),
		"display_name": view.Viewpoint.DisplayName(),
		"can_write":    view.CanWrite,
	})
}

func (s *connSink) Messages(roomID string, msgs []*domain.Message) {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]any{
			"id":          m.ID,
			"sender_id":   m.SenderID,
			"sender_name": m.SenderName,
			"sender_img":  m.SenderImg,
			"text":        m.Text,
			"timestamp":   m.Timestamp.Format(time.RFC3339Nano),
		})
	}
	s.write(map[string]any{
		"type":     "messages",
		"room_id":  roomID,
		"messages": out,
	})
}

func (s *connSink) sendError(msg string) {
	s.write(map[string]any{
		"type":    "error",
		"message": msg,
	})
}

var _ service.SessionSink = (*connSink)(nil)

// MakeHandler returns an HTTP handler for the /ws endpoint.
// Authenticates via Bearer token (Authorization header or Sec-WebSocket-Protocol),
// starts a chat session pinned to the public room, then dispatches events:
//   - select_room    -> switch the active room
//   - open_direct    -> resolve the direct room with a user and switch to it
//   - send           -> append a message to the active room
//   - set_oversight  -> toggle admin oversight mode
func MakeHandler(
	registry *Registry,
	tokens *security.TokenService,
	users domain.UserRepository,
	roomSvc *service.RoomService,
	dirSvc *service.DirectoryService,
	msgSvc *service.MessageService,
	allowedOrigins []string,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			if authErr, ok := err.(wsAuthError); ok {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			http.Error(w, "invalid token subject", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		user, err := users.GetByUsername(ctx, sub)
		if err != nil || !user.IsActive {
			http.Error(w, "user not found or inactive", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sink := &connSink{conn: conn, viewer: user}
		session := service.NewChatSession(user, roomSvc, msgSvc, dirSvc, sink)
		if err := session.Start(ctx); err != nil {
			log.Printf("ws: start session for %s: %v", user.Username, err)
			sink.sendError("failed to start session")
			return
		}

		registry.Register(user.Username, conn, session)
		defer func() {
			registry.Unregister(user.Username, conn)
			session.Close()
		}()

		for {
			var payload map[string]any
			if err := conn.ReadJSON(&payload); err != nil {
				break
			}
			msgType, _ := payload["type"].(string)
			switch msgType {

			case "select_room":
				roomID, _ := payload["room_id"].(string)
				if roomID == "" {
					sink.sendError("select_room requires room_id")
					continue
				}
				if err := session.SelectRoom(ctx, roomID); err != nil {
					log.Printf("ws: select_room %q for %s: %v", roomID, user.Username, err)
					sink.sendError(err.Error())
				}

			case "open_direct":
				username, _ := payload["username"].(string)
				if username == "" {
					sink.sendError("open_direct requires username")
					continue
				}
				if err := session.OpenDirect(ctx, username); err != nil {
					log.Printf("ws: open_direct %q for %s: %v", username, user.Username, err)
					sink.sendError(err.Error())
				}

			case "send":
				text, _ := payload["text"].(string)
				if _, err := session.Send(ctx, text); err != nil {
					log.Printf("ws: send for %s: %v", user.Username, err)
					sink.sendError(err.Error())
				}

			case "set_oversight":
				enabled, _ := payload["enabled"].(bool)
				if err := session.SetOversight(ctx, enabled); err != nil {
					log.Printf("ws: set_oversight for %s: %v", user.Username, err)
					sink.sendError(err.Error())
				}

			default:
				log.Printf("ws: unknown event type %q from user %s", msgType, user.Username)
			}
		}
	}
}
