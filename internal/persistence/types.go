package persistence

import (
	"time"

	"github.com/noricha-vr/twitter-video-translator/internal/jobs"
)

// HistoryFilter narrows History results. Zero values match everything.
type HistoryFilter struct {
	Status jobs.Status
	Since  time.Time
	Limit  int
}
