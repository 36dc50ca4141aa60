package service

import (
	"strings"

	"directory_go/internal/domain"
)

// ViewpointKind classifies how a viewer relates to an open room.
type ViewpointKind string

const (
	// ViewPublic is the shared room; everyone reads and writes.
	ViewPublic ViewpointKind = "public"
	// ViewParticipant is a direct room the viewer belongs to.
	ViewParticipant ViewpointKind = "participant"
	// ViewSpectator is a direct room opened under admin oversight by a
	// non-participant. Read only.
	ViewSpectator ViewpointKind = "spectator"
)

// PublicRoomName is the display label of the shared room.
const PublicRoomName = "Global Headquarters"

// Viewpoint captures the viewer's relation to a room and the labels that
// follow from it.
type Viewpoint struct {
	Kind ViewpointKind
	// Other is the counterpart's username, set only for participants.
	Other string
	// Pair holds both participant usernames, set only for spectators.
	Pair []string
}

// ResolveViewpoint classifies the viewer against the room. The caller has
// already passed the read gate; an unauthenticated viewer only ever reaches
// the public room.
func ResolveViewpoint(viewer *domain.User, room *domain.Room) Viewpoint {
	if room.Kind == domain.RoomPublic {
		return Viewpoint{Kind: ViewPublic}
	}
	if viewer != nil && room.HasParticipant(viewer.Username) {
		other := ""
		for _, p := range room.Participants {
			if p != viewer.Username {
				other = p
				break
			}
		}
		return Viewpoint{Kind: ViewParticipant, Other: other}
	}
	pair := make([]string, len(room.Participants))
	copy(pair, room.Participants)
	return Viewpoint{Kind: ViewSpectator, Pair: pair}
}

// DisplayName renders the room title for this viewpoint: the shared room's
// fixed name, the counterpart for a participant, and the full pair for a
// spectator looking in from outside.
func (v Viewpoint) DisplayName() string {
	switch v.Kind {
	case ViewPublic:
		return PublicRoomName
	case ViewParticipant:
		return v.Other
	default:
		return strings.Join(v.Pair, " & ")
	}
}
