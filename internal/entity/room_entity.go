package entity

import "time"

type Room struct {
	Id                  int64
	Name                string
	IsActive            bool
	SessionStartAt      *time.Time
	LastSessionImageUrl *string
	LastSessionEndedAt  *time.Time
	ThumbnailUrl        *string
	ThumbnailUpdatedAt  *time.Time
	UpdatedAt           *time.Time
}

// SessionExpired reports whether an active session has run past limit at now.
// An idle room is never expired.
func (r *Room) SessionExpired(now time.Time, limit time.Duration) bool {
	if !r.IsActive || r.SessionStartAt == nil {
		return false
	}
	return now.Sub(*r.SessionStartAt) >= limit
}

// Remaining is the time left before the session limit, clamped at zero.
func (r *Room) Remaining(now time.Time, limit time.Duration) time.Duration {
	if !r.IsActive || r.SessionStartAt == nil {
		return 0
	}
	left := limit - now.Sub(*r.SessionStartAt)
	if left < 0 {
		return 0
	}
	return left
}
