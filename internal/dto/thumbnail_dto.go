package dto

type ThumbnailCredentialRequest struct {
	UserId string `json:"user_id" validate:"required"`
	Size   int64  `json:"size" validate:"gt=0"`
}

type ThumbnailCredentialResponse struct {
	Upload     UploadTarget `json:"upload"`
	PublicUrl  string       `json:"public_url"`
	ObjectPath string       `json:"object_path"`
}

type UpdateThumbnailRequest struct {
	UserId string `json:"user_id" validate:"required"`
}
