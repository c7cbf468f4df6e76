package service

import (
	"time"

	"paintroom-be/internal/config"
)

// SessionRules are the timing and size limits shared by the session services.
type SessionRules struct {
	TimeLimit       time.Duration
	LockTTL         time.Duration
	MaxUploadBytes  int64
	ThumbnailMinGap time.Duration
	Now             func() time.Time
}

func NewSessionRules(cfg config.SessionConfig) SessionRules {
	return SessionRules{
		TimeLimit:       cfg.TimeLimit,
		LockTTL:         cfg.ArchiveLockTTL,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		ThumbnailMinGap: cfg.ThumbnailMinGap,
		Now:             time.Now,
	}
}

func (r SessionRules) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}
