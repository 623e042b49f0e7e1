package audit

import "time"

// Event is a recorded security-relevant action.
type Event struct {
	ID         string
	Actor      string
	Role       string
	Action     string
	Resource   string
	Status     int
	RemoteAddr string
	UserAgent  string
	Detail     string
	CreatedAt  time.Time
}
