package entity

import "time"

// Presence is one tracked connection. A user with two tabs has two entries.
type Presence struct {
	ConnId   string    `json:"conn_id"`
	UserId   string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}
