package entity

import "time"

const (
	ToolPen    = "pen"
	ToolEraser = "eraser"
)

type Stroke struct {
	Seq       int64
	Id        string
	RoomId    int64
	UserId    string
	UserName  string
	Points    []float64
	Color     string
	Width     float64
	Tool      string
	LayerId   int
	CreatedAt time.Time
}
