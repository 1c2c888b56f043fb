package models

import "time"

// Video is recording metadata linked 1:1 to a simulation once the external
// recorder sync associates it.
type Video struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	DurationSecs   int       `db:"duration_secs" json:"duration_secs"`
	SizeBytes      int64     `db:"size_bytes" json:"size_bytes"`
	Available      bool      `db:"available" json:"available"`
	ExpirationDate time.Time `db:"expiration_date" json:"expiration_date"`
	StorageURL     string    `db:"storage_url" json:"storage_url"`
	SimulationID   *string   `db:"simulation_id" json:"simulation_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// VideoFilter captures filtering criteria for listing videos.
type VideoFilter struct {
	SimulationID string
	Available    *bool
	Page         int
	PageSize     int
}
