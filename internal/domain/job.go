package domain

import "time"

// Phase enumerates the lifecycle checkpoints a job announces to its user.
type Phase string

const (
	PhaseReceived    Phase = "received"
	PhaseUploading   Phase = "uploading"
	PhaseDownloading Phase = "downloading"
	PhaseDelivering  Phase = "delivering"
	PhaseDone        Phase = "done"
)

// Job is one user's transformation request. A job is owned by exactly one
// run from admission until the user's session is released.
type Job struct {
	RunID      string
	UserID     int64
	ChatID     int64
	FileID     string
	Locale     string
	ReceivedAt time.Time
}
