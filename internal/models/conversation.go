package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a chat session.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"content"`
	At   time.Time `json:"at"`
}

// History is the chronological list of turns of a session.
type History []Turn

// Clone returns a copy that does not share the backing array.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}
