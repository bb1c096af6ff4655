package domain

import "time"

// UsageLog is written once per successful job. BytesSaved only counts
// compression outputs.
type UsageLog struct {
	UserID          string
	JobID           string
	PixelsProcessed int64
	BytesSaved      int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}

// NewUsageLog totals the successful outputs of a job. Pixels are counted on
// the output side; bytes saved is clamped at zero per compress output so a
// grown file does not offset a shrunk one.
func NewUsageLog(userID, jobID string, sourceBytes int, outputs []StepOutput, compute time.Duration) UsageLog {
	if userID == "" {
		userID = "anonymous"
	}
	usage := UsageLog{
		UserID:        userID,
		JobID:         jobID,
		ComputeTimeMS: max(1, compute.Milliseconds()),
		CreatedAt:     time.Now().UTC(),
	}
	for _, out := range outputs {
		if !out.Success {
			continue
		}
		usage.PixelsProcessed += int64(out.Width) * int64(out.Height)
		if out.CompressionRatio != nil {
			usage.BytesSaved += int64(max(0, sourceBytes-out.Bytes))
		}
	}
	return usage
}
