package entities

import "time"

// OPDSFeed is a user-added catalog feed definition.
type OPDSFeed struct {
	// Identifier is the opaque, stable key assigned on creation
	Identifier string    `gorm:"primaryKey;size:64" json:"identifier"`
	Title      string    `gorm:"size:500;not null" json:"title"`
	URL        string    `gorm:"column:url;type:text;not null;index" json:"url"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (OPDSFeed) TableName() string {
	return "opds_feeds"
}
