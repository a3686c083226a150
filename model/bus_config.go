package model

import (
	"fmt"
	"time"

	"github.com/openbusio/backplane/params"
	"gorm.io/gorm"
)

// BusConfig is the tenant-level namespace record: who owns the bus and
// how long its messages are retained.
type BusConfig struct {
	ID                     uint   `gorm:"primarykey"`
	Name                   string `gorm:"size:253;not null;uniqueIndex"`
	Owner                  string `gorm:"size:64;not null;index"`
	RetentionSeconds       int    `gorm:"not null"`
	StickyRetentionSeconds int    `gorm:"not null"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
	DeletedAt              gorm.DeletedAt `gorm:"index"`
}

func (b *BusConfig) BeforeCreate(tx *gorm.DB) error {
	if b.ID == 0 {
		b.ID = GenerateID()
	}
	return nil
}

func (b *BusConfig) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("bus name cannot be blank")
	}
	if b.RetentionSeconds < params.RetentionMinSeconds || b.RetentionSeconds > params.RetentionMaxSeconds {
		return fmt.Errorf("retention %d out of range [%d, %d]",
			b.RetentionSeconds, params.RetentionMinSeconds, params.RetentionMaxSeconds)
	}
	if b.StickyRetentionSeconds < params.RetentionStickyMinSeconds || b.StickyRetentionSeconds > params.RetentionStickyMaxSeconds {
		return fmt.Errorf("sticky retention %d out of range [%d, %d]",
			b.StickyRetentionSeconds, params.RetentionStickyMinSeconds, params.RetentionStickyMaxSeconds)
	}
	return nil
}

func (b *BusConfig) Retention() time.Duration {
	return time.Duration(b.RetentionSeconds) * time.Second
}

func (b *BusConfig) StickyRetention() time.Duration {
	return time.Duration(b.StickyRetentionSeconds) * time.Second
}
