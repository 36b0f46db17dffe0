package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the durable copy of a verified webhook. A record with
// ProcessedAt set has had its effects committed exactly once.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        string
	EventID         string
	EventType       string
	Payload         datatypes.JSON `gorm:"type:jsonb"`
	CorrelationID   string
	Attempts        int
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
	ProcessingError *string
}

func (EventRecord) TableName() string { return "webhook_events" }
