package entity

import "time"

const (
	LockKindUser   = "user"
	LockKindSystem = "system"
)

// ArchiveLock authorizes exactly one FinishSession for a room.
// Only the hash of the finish token is kept.
type ArchiveLock struct {
	RoomId     int64     `json:"room_id"`
	SecretHash []byte    `json:"secret_hash"`
	Kind       string    `json:"kind"`
	ObjectPath string    `json:"object_path"`
	PublicUrl  string    `json:"public_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (l *ArchiveLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
