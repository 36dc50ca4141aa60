package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"directory_go/internal/domain"
	"directory_go/internal/service"
)

type roomResponse struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Participants   []string  `json:"participants,omitempty"`
	DisplayName    string    `json:"display_name"`
	CanWrite       bool      `json:"can_write"`
	LastMessage    string    `json:"last_message,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type openDirectRequest struct {
	Username string `json:"username"`
}

func roomToResponse(viewer *domain.User, room *domain.Room) roomResponse {
	var gate service.AccessGate
	vp := service.ResolveViewpoint(viewer, room)
	return roomResponse{
		ID:             room.ID,
		Kind:           string(room.Kind),
		Participants:   room.Participants,
		DisplayName:    vp.DisplayName(),
		CanWrite:       gate.CanWrite(viewer, room),
		LastMessage:    room.LastMessage,
		LastActivityAt: room.LastActivityAt,
	}
}

// @Summary      List rooms
// @Description  List the caller's rooms; admins may pass mode=all to see every room
// @Tags         chat
// @Security     BearerAuth
// @Produce      json
// @Param        mode query string false "own or all" default(own)
// @Success      200  {array}   roomResponse
// @Failure      403  {object}  map[string]string
// @Router       /chat/rooms [get]
func handleListRooms(dirSvc *service.DirectoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		mode := service.ModeOwn
		if r.URL.Query().Get("mode") == string(service.ModeAll) {
			mode = service.ModeAll
		}
		rooms, err := dirSvc.List(r.Context(), viewer, mode)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]roomResponse, 0, len(rooms))
		for _, room := range rooms {
			out = append(out, roomToResponse(viewer, room))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// @Summary      Open a direct room
// @Description  Resolve the direct room with another user, creating it on first contact
// @Tags         chat
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body openDirectRequest true "Counterpart"
// @Success      200  {object}  roomResponse
// @Failure      400  {object}  map[string]string
// @Router       /chat/direct [post]
func handleOpenDirect(roomSvc *service.RoomService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		var req openDirectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		room, err := roomSvc.ResolveDirectRoom(r.Context(), viewer.Username, req.Username)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, roomToResponse(viewer, room))
	}
}

// @Summary      List messages
// @Description  List a room's messages in order; admins may pass oversight=true for rooms they are not in
// @Tags         chat
// @Security     BearerAuth
// @Produce      json
// @Param        roomID path string true "Room id"
// @Param        oversight query bool false "Read as overseer"
// @Success      200  {array}   domain.Message
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /chat/rooms/{roomID}/messages [get]
func handleListMessages(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		roomID := chi.URLParam(r, "roomID")
		oversight := r.URL.Query().Get("oversight") == "true"
		msgs, err := msgSvc.List(r.Context(), viewer, roomID, oversight)
		if err != nil {
			writeError(w, err)
			return
		}
		if msgs == nil {
			msgs = []*domain.Message{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

// @Summary      Send a message
// @Description  Append a message to a room as the caller
// @Tags         chat
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        roomID path string true "Room id"
// @Param        input body sendMessageRequest true "Message"
// @Success      201  {object}  domain.Message
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /chat/rooms/{roomID}/messages [post]
func handleSendMessage(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := CurrentUser(r)
		roomID := chi.URLParam(r, "roomID")
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		msg, err := msgSvc.Append(r.Context(), roomID, viewer, req.Text)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}
