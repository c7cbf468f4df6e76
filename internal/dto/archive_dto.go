package dto

import "time"

type ArchiveCredentialRequest struct {
	// Token is the human check token. Not needed for the system kind.
	Token string `json:"token"`
	Size  int64  `json:"size" validate:"gt=0"`
	Kind  string `json:"kind" validate:"omitempty,oneof=user system"`
}

type UploadTarget struct {
	Url     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
}

type ArchiveCredentialResponse struct {
	Upload      UploadTarget `json:"upload"`
	FinishToken string       `json:"finish_token"`
	PublicUrl   string       `json:"public_url"`
	ObjectPath  string       `json:"object_path"`
	ExpiresAt   time.Time    `json:"expires_at"`
}
