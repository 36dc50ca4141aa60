package service

import "directory_go/internal/domain"

// AccessGate decides read and write eligibility for a viewer and a room.
//
// Read and write agree everywhere except one case: an admin with oversight
// enabled may read rooms they are not a participant of, but may never write
// to them. Every append goes through CanWrite before the store is touched.
type AccessGate struct{}

// CanRead reports whether the viewer may see the room's messages. The
// oversight flag is the viewer's session state, never ambient.
func (AccessGate) CanRead(viewer *domain.User, room *domain.Room, oversight bool) bool {
	if room.Kind == domain.RoomPublic {
		return true
	}
	if viewer == nil {
		return false
	}
	if room.HasParticipant(viewer.Username) {
		return true
	}
	return oversight && viewer.IsAdmin()
}

// CanWrite reports whether the viewer may post to the room. Oversight grants
// no write access: a non-participant admin stays a spectator.
func (AccessGate) CanWrite(viewer *domain.User, room *domain.Room) bool {
	if viewer == nil {
		return false
	}
	if room.Kind == domain.RoomPublic {
		return true
	}
	return room.HasParticipant(viewer.Username)
}
