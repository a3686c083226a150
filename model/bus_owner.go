package model

import (
	"time"

	"gorm.io/gorm"
)

// BusOwner is a resource owner who can approve grants for the buses
// registered under their name.
type BusOwner struct {
	ID           uint   `gorm:"primarykey"`
	Username     string `gorm:"size:64;not null;uniqueIndex"`
	PasswordHash string `gorm:"size:128;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (o *BusOwner) BeforeCreate(tx *gorm.DB) error {
	if o.ID == 0 {
		o.ID = GenerateID()
	}
	return nil
}
