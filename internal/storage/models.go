package storage

import (
	"time"
)

// AlertRecord captures an emitted threshold alert for auditing.
type AlertRecord struct {
	ID            int64
	ObservedAt    time.Time
	Direction     string
	ChangePct     float64
	CurrentPrice  float64
	PreviousPrice float64
	ThresholdPct  float64
	Message       string
	Delivered     bool
	CreatedAt     time.Time
}
