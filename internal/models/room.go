package models

import "time"

// RoomType categorises physical rooms.
type RoomType string

const (
	RoomTypeClassroom   RoomType = "CLASSROOM"
	RoomTypeLab         RoomType = "LAB"
	RoomTypeLectureHall RoomType = "LECTURE_HALL"
	RoomTypeSeminar     RoomType = "SEMINAR"
)

// Room is a physical location where offerings meet.
type Room struct {
	ID        string    `db:"id" json:"id"`
	Number    string    `db:"number" json:"number"`
	Building  string    `db:"building" json:"building"`
	Capacity  int       `db:"capacity" json:"capacity"`
	RoomType  RoomType  `db:"room_type" json:"room_type"`
	Available bool      `db:"available" json:"available"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RoomFilter captures search parameters for listing rooms.
type RoomFilter struct {
	Building  string
	RoomType  RoomType
	Available *bool
	Page      int
	PageSize  int
}
