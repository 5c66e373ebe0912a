package media

import (
	"context"

	"golang.org/x/text/language"
)

// Info is what ffprobe reports about a media file.
type Info struct {
	Duration  float64
	HasVideo  bool
	HasAudio  bool
	Width     int
	Height    int
	Subtitles []SubtitleStream
}

// SubtitleStream describes an embedded subtitle track.
type SubtitleStream struct {
	Language string
	Title    string
	LangTag  language.Tag
}

// MuxRequest combines a video, a replacement audio track and subtitles
// into one MP4.
type MuxRequest struct {
	Video string
	// Audio replaces the video's own audio when set.
	Audio     string
	Subtitles string
	Output    string

	// BurnSubtitles renders the subtitles into the picture; otherwise they
	// are attached as a mov_text track.
	BurnSubtitles    bool
	SubtitleLanguage language.Tag
	Font             string
	FontSize         int

	VideoCodec   string
	AudioCodec   string
	CRF          int
	AudioBitrate string
}

// Operator is the ffmpeg surface used by the pipeline.
type Operator interface {
	Probe(ctx context.Context, path string) (Info, error)
	ExtractAudio(ctx context.Context, video, output string, sampleRate int) error
	Split(ctx context.Context, input, toDir string, chunkSeconds int) ([]string, error)
	Mux(ctx context.Context, req MuxRequest) error
}

func NewOperator() Operator {
	return NewFfmpeg()
}
