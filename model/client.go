package model

import (
	"time"

	"gorm.io/gorm"
)

// Client is a registered OAuth2 client allowed to request privileged
// tokens against the buses its grants cover.
type Client struct {
	ID           uint   `gorm:"primarykey"`
	Name         string `gorm:"size:128;not null"`
	ClientID     string `gorm:"size:64;not null;uniqueIndex"`
	ClientSecret string `gorm:"size:128;not null"`
	RedirectURI  string `gorm:"size:1024;not null"`
	SourceURL    string `gorm:"size:1024"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == 0 {
		c.ID = GenerateID()
	}
	return nil
}
