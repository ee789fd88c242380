package relay

import "github.com/1ureka/meshcall/internal/protocol"

// room is the set of members sharing one RoomID, in join order. Owned by
// the hub goroutine.
type room struct {
	id      protocol.RoomID
	members []*member
}

func (r *room) find(id protocol.ParticipantID) *member {
	for _, m := range r.members {
		if m.id == id {
			return m
		}
	}
	return nil
}

// remove deletes m and reports whether it was present.
func (r *room) remove(m *member) bool {
	for i, c := range r.members {
		if c == m {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

func (r *room) ids() []protocol.ParticipantID {
	out := make([]protocol.ParticipantID, len(r.members))
	for i, m := range r.members {
		out[i] = m.id
	}
	return out
}
