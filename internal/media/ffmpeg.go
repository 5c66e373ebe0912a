package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

const (
	DefaultSubtitleFont     = "Hiragino Sans"
	DefaultSubtitleFontSize = 24
)

type ffmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
}

func NewFfmpeg() ffmpeg {
	return ffmpeg{
		ffmpegCmd:  "ffmpeg",
		ffprobeCmd: "ffprobe",
	}
}

// Probe reads duration and stream layout. A non-zero exit is tolerated
// when ffprobe still printed a usable description.
func (ff ffmpeg) Probe(ctx context.Context, path string) (Info, error) {
	cmdPath, err := exec.LookPath(ff.ffprobeCmd)
	if err != nil {
		return Info{}, err
	}
	cmd := exec.CommandContext(ctx, cmdPath, ff.probeArgs(path)...)

	output, runErr := cmd.Output()
	if ctx.Err() != nil {
		return Info{}, ctx.Err()
	}

	var probeResult struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			CodecName string `json:"codec_name"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
			Duration  string `json:"duration"`
			Tags      struct {
				Language string `json:"language"`
				Title    string `json:"title"`
			} `json:"tags"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(output, &probeResult); err != nil {
		if runErr != nil {
			return Info{}, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), runErr)
		}
		log.Error("Failed to parse ffprobe output: %v", err)
		return Info{}, err
	}
	if runErr != nil && len(probeResult.Streams) == 0 {
		return Info{}, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), runErr)
	}

	info := Info{Subtitles: make([]SubtitleStream, 0)}
	info.Duration, _ = strconv.ParseFloat(probeResult.Format.Duration, 64)
	for _, stream := range probeResult.Streams {
		switch stream.CodecType {
		case "video":
			info.HasVideo = true
			info.Width, info.Height = stream.Width, stream.Height
		case "audio":
			info.HasAudio = true
		case "subtitle":
			sub := SubtitleStream{
				Language: stream.Tags.Language,
				Title:    stream.Tags.Title,
				LangTag:  language.All.Make(stream.Tags.Language),
			}
			if sub.Language == "" {
				sub.Language = "und"
				sub.LangTag = language.Und
			}
			info.Subtitles = append(info.Subtitles, sub)
		}
		if info.Duration == 0 {
			if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil && d > info.Duration {
				info.Duration = d
			}
		}
	}
	return info, nil
}

// ExtractAudio writes the first audio stream as mono 16-bit PCM WAV.
func (ff ffmpeg) ExtractAudio(ctx context.Context, video, output string, sampleRate int) error {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	return ff.run(ctx, ff.extractAudioArgs(video, output, sampleRate))
}

// Split cuts input into chunks of chunkSeconds without re-encoding and
// returns the chunk paths in order.
func (ff ffmpeg) Split(ctx context.Context, input, toDir string, chunkSeconds int) ([]string, error) {
	if chunkSeconds <= 0 {
		return nil, fmt.Errorf("invalid chunk length %d", chunkSeconds)
	}
	if err := os.MkdirAll(toDir, 0o755); err != nil {
		return nil, err
	}
	pattern := filepath.Join(toDir, "chunk_%03d"+filepath.Ext(input))
	if err := ff.run(ctx, ff.splitArgs(input, pattern, chunkSeconds)); err != nil {
		return nil, err
	}

	chunks, err := filepath.Glob(filepath.Join(toDir, "chunk_*"+filepath.Ext(input)))
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no chunks for %s", filepath.Base(input))
	}
	sort.Strings(chunks)
	return chunks, nil
}

// Mux encodes the deliverable. Audio is taken as is; ffmpeg never mixes.
func (ff ffmpeg) Mux(ctx context.Context, req MuxRequest) error {
	if req.Video == "" || req.Output == "" {
		return fmt.Errorf("mux needs a video and an output path")
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return err
	}
	log.Info("Muxing %s", filepath.Base(req.Output))
	return ff.run(ctx, ff.muxArgs(req))
}

func (ff ffmpeg) run(ctx context.Context, args []string) error {
	cmdPath, err := exec.LookPath(ff.ffmpegCmd)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Debug("ffmpeg %s", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, tail(stderr.String(), 500))
	}
	return nil
}

func (ffmpeg) probeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
}

func (ffmpeg) extractAudioArgs(video, output string, sampleRate int) []string {
	return []string{
		"-y",
		"-i", video,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		output,
	}
}

func (ffmpeg) splitArgs(input, pattern string, chunkSeconds int) []string {
	return []string{
		"-y",
		"-i", input,
		"-f", "segment",
		"-segment_time", strconv.Itoa(chunkSeconds),
		"-c", "copy",
		"-reset_timestamps", "1",
		pattern,
	}
}

func (ffmpeg) muxArgs(req MuxRequest) []string {
	args := []string{"-y", "-i", req.Video}
	audioInput := "0:a:0?"
	if req.Audio != "" {
		args = append(args, "-i", req.Audio)
		audioInput = "1:a:0"
	}
	soft := req.Subtitles != "" && !req.BurnSubtitles
	if soft {
		args = append(args, "-i", req.Subtitles)
	}

	args = append(args, "-map", "0:v:0", "-map", audioInput)

	if soft {
		subIndex := 1
		if req.Audio != "" {
			subIndex = 2
		}
		args = append(args, "-map", fmt.Sprintf("%d:s:0", subIndex), "-c:v", "copy", "-c:s", "mov_text")
		if req.SubtitleLanguage != language.Und {
			if base, _ := req.SubtitleLanguage.Base(); base.ISO3() != "" {
				args = append(args, "-metadata:s:s:0", "language="+base.ISO3())
			}
		}
	} else {
		if req.Subtitles != "" {
			args = append(args, "-vf", subtitleFilter(req.Subtitles, req.Font, req.FontSize))
		}
		args = append(args, "-c:v", orDefault(req.VideoCodec, "libx264"), "-crf", strconv.Itoa(crfOrDefault(req.CRF)))
	}

	args = append(args,
		"-c:a", orDefault(req.AudioCodec, "aac"),
		"-b:a", orDefault(req.AudioBitrate, "192k"),
		"-movflags", "+faststart",
		req.Output,
	)
	return args
}

func subtitleFilter(path, font string, size int) string {
	if font == "" {
		font = DefaultSubtitleFont
	}
	if size <= 0 {
		size = DefaultSubtitleFontSize
	}
	style := fmt.Sprintf("FontName=%s,FontSize=%d,PrimaryColour=&HFFFFFF,OutlineColour=&H000000,Outline=2", font, size)
	return fmt.Sprintf("subtitles=%s:force_style='%s'", escapeFilterPath(path), style)
}

// escapeFilterPath quotes the characters the filtergraph parser treats
// specially inside an option value.
func escapeFilterPath(path string) string {
	r := strings.NewReplacer(`\`, `\\\\`, `:`, `\\:`, `'`, `\\\'`, `,`, `\,`, `[`, `\[`, `]`, `\]`)
	return r.Replace(path)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func crfOrDefault(crf int) int {
	if crf <= 0 {
		return 23
	}
	return crf
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
