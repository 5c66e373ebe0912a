package subtitle

import (
	"time"

	"golang.org/x/text/language"
)

// Line is one entry of a parsed subtitle file.
type Line struct {
	Index     int
	StartTime time.Duration
	EndTime   time.Duration
	Text      string
}

// File is a parsed subtitle file.
type File struct {
	Path     string
	Lines    []Line
	Language language.Tag
	Format   string
}

// Cue is one encoded subtitle entry.
type Cue struct {
	// Ordinal is the 1-based SRT sequence number.
	Ordinal int
	// Segment is the transcription index of the source segment.
	Segment int
	Start   float64
	End     float64
	Text    string
}
