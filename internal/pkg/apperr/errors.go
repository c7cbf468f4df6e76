// Package apperr holds the sentinel errors shared by services, handlers and the
// client SDK. Wrap them with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
package apperr

import "errors"

var (
	// ErrAuth covers failed human verification and finish token mismatches.
	ErrAuth = errors.New("authorization failed")
	// ErrExpired means the archive lock outlived its expiry window.
	ErrExpired = errors.New("archive lock expired")
	ErrStore   = errors.New("store operation failed")
	ErrUpload  = errors.New("artifact upload failed")
	// ErrSizeLimit is returned before any credential is issued.
	ErrSizeLimit = errors.New("artifact exceeds size limit")

	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrSessionActive    = errors.New("session already active")
	ErrSessionNotActive = errors.New("session not active")
	ErrNotLeader        = errors.New("caller is not the thumbnail leader")
	ErrRateLimited      = errors.New("rate limited")
)
