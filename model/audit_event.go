package model

import (
	"time"

	"gorm.io/gorm"
)

// AuditEvent records a security-relevant registry or grant operation.
type AuditEvent struct {
	ID        uint   `gorm:"primarykey"`
	Actor     string `gorm:"size:64;not null;index"`
	EventType string `gorm:"size:32;not null;index"`
	ClientID  string `gorm:"size:64;index"`
	GrantID   string `gorm:"size:64"`
	Buses     string `gorm:"size:1024"`
	Reason    string `gorm:"size:256"`
	CreatedAt time.Time
}

func (e *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == 0 {
		e.ID = GenerateID()
	}
	return nil
}
