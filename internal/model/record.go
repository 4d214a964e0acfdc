package model

import "time"

// StoredRecord is a persisted player document as the storage backends see it
type StoredRecord struct {
	UserID    UserID     `json:"user_id"`
	Data      PlayerData `json:"data"`
	OwnerTags []UserID   `json:"owner_tags"`
	UpdatedAt time.Time  `json:"updated_at"`
}
