package chat

import "time"

// DefaultSessionTitle is shown until the first user message names the session.
const DefaultSessionTitle = "새 채팅"

// Session is one conversation thread owned by a single user.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	FirstMessage string    `json:"firstMessage"`
	OwnerID      string    `json:"userId"`
	HasMessages  bool      `json:"hasMessages"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Listed reports whether the session should appear in session lists.
// Sessions without a preview have no messages yet and stay hidden.
func (s Session) Listed() bool {
	return s.FirstMessage != ""
}
