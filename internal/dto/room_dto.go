package dto

import "time"

type RoomResponse struct {
	Id                  int64      `json:"id"`
	Name                string     `json:"name"`
	IsActive            bool       `json:"is_active"`
	SessionStartAt      *time.Time `json:"session_start_at"`
	SessionEndsAt       *time.Time `json:"session_ends_at"`
	LastSessionImageUrl *string    `json:"last_session_image_url"`
	LastSessionEndedAt  *time.Time `json:"last_session_ended_at"`
	ThumbnailUrl        *string    `json:"thumbnail_url"`
	ThumbnailUpdatedAt  *time.Time `json:"thumbnail_updated_at"`
}

type RoomListItem struct {
	RoomResponse
	StrokeCount  int64 `json:"stroke_count"`
	Participants int   `json:"participants"`
}

type StartSessionRequest struct {
	Token string `json:"token" validate:"required"`
}

type FinishSessionRequest struct {
	ArtifactUrl string `json:"artifact_url" validate:"required,url"`
	FinishToken string `json:"finish_token" validate:"required"`
}
