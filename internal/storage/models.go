package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Check run outcomes.
const (
	StatusComplete   = "complete"
	StatusNoLocation = "no_location"
	StatusErrored    = "errored"
	StatusSkipped    = "skipped"
	StatusNoSink     = "no_sink"
)

// CheckRun represents one persisted evaluation of the periodic prayer check.
type CheckRun struct {
	RunID      string
	TickAt     time.Time
	Latitude   *decimal.Decimal
	Longitude  *decimal.Decimal
	Method     string
	Status     string
	Matched    []string
	Error      *string
	DurationMS int64
	CreatedAt  time.Time
}

// NotificationRecord captures an emitted prayer notification for auditing and
// once-per-day suppression.
type NotificationRecord struct {
	ID             int64
	RunID          string
	Day            time.Time
	Prayer         string
	NotificationID int64
	PrayerTime     time.Time
	Sends          int
	Error          *string
	CreatedAt      time.Time
}
