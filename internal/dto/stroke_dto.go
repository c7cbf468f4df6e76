package dto

import "time"

type SubmitStrokeRequest struct {
	Id       string    `json:"id" validate:"required,max=64"`
	Points   []float64 `json:"points" validate:"required,min=2"`
	Color    string    `json:"color" validate:"required"`
	Width    float64   `json:"width" validate:"gt=0,lte=100"`
	Tool     string    `json:"tool" validate:"required,oneof=pen eraser"`
	LayerId  int       `json:"layer_id" validate:"required"`
	UserId   string    `json:"user_id" validate:"required,max=64"`
	UserName string    `json:"user_name" validate:"max=64"`
}

type StrokeResponse struct {
	Seq       int64     `json:"seq"`
	Id        string    `json:"id"`
	Points    []float64 `json:"points"`
	Color     string    `json:"color"`
	Width     float64   `json:"width"`
	Tool      string    `json:"tool"`
	LayerId   int       `json:"layer_id"`
	UserId    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	CreatedAt time.Time `json:"created_at"`
}

type ClearStrokesResponse struct {
	Deleted int64 `json:"deleted"`
}
