package models

import "time"

// RoomType groups rooms by clinical specialty. A type with no remaining
// rooms is removed together with its last room.
type RoomType struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Room is a bookable simulation room. Name is unique; IP binds the room to
// its recording device.
type Room struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Capacity   int       `db:"capacity" json:"capacity"`
	IP         string    `db:"ip" json:"ip"`
	RoomTypeID string    `db:"room_type_id" json:"room_type_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// RoomFilter captures filtering criteria for listing rooms.
type RoomFilter struct {
	RoomTypeID string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
