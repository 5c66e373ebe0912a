package media

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

// installFake puts a shell script named name first on PATH.
func installFake(t *testing.T, name, body string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools need a POSIX shell")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestFFmpeg_Probe(t *testing.T) {
	tests := []struct {
		name        string
		mockOutput  string
		exitCode    int
		duration    float64
		hasAudio    bool
		subtitles   []SubtitleStream
		expectError bool
	}{
		{
			name: "video with audio and subtitles",
			mockOutput: `{
				"format": {"duration": "12.480000"},
				"streams": [
					{"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720},
					{"codec_type": "audio", "codec_name": "aac", "tags": {"language": "eng"}},
					{"codec_type": "subtitle", "codec_name": "mov_text", "tags": {"language": "eng", "title": "English"}}
				]
			}`,
			duration:  12.48,
			hasAudio:  true,
			subtitles: []SubtitleStream{{Language: "eng", Title: "English"}},
		},
		{
			name: "subtitle without language tag",
			mockOutput: `{
				"format": {},
				"streams": [
					{"codec_type": "audio", "codec_name": "pcm_s16le", "duration": "3.5"},
					{"codec_type": "subtitle", "codec_name": "srt"}
				]
			}`,
			duration:  3.5,
			hasAudio:  true,
			subtitles: []SubtitleStream{{Language: "und"}},
		},
		{
			name:        "invalid json",
			mockOutput:  `{"streams": [invalid json`,
			expectError: true,
		},
		{
			name:       "valid json with non-zero exit",
			mockOutput: `{"format": {"duration": "1.0"}, "streams": [{"codec_type": "video"}]}`,
			exitCode:   1,
			duration:   1,
			subtitles:  []SubtitleStream{},
		},
		{
			name:        "non-zero exit without streams should fail",
			mockOutput:  `{}`,
			exitCode:    1,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			installFake(t, "ffprobe", "echo '"+tt.mockOutput+"'\nexit "+strconv.Itoa(tt.exitCode)+"\n")

			info, err := NewFfmpeg().Probe(context.Background(), "dummy.mp4")
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.duration, info.Duration, 1e-9)
			assert.Equal(t, tt.hasAudio, info.HasAudio)
			require.Len(t, info.Subtitles, len(tt.subtitles))
			for i, want := range tt.subtitles {
				assert.Equal(t, want.Language, info.Subtitles[i].Language)
				assert.Equal(t, want.Title, info.Subtitles[i].Title)
				if want.Language == "und" {
					assert.Equal(t, language.Und, info.Subtitles[i].LangTag)
				} else {
					assert.NotEqual(t, language.Und, info.Subtitles[i].LangTag)
				}
			}
		})
	}
}

func TestFFmpeg_ExtractAudioArgs(t *testing.T) {
	args := NewFfmpeg().extractAudioArgs("/in/video.mp4", "/ws/audio.wav", 16000)
	assert.Equal(t, []string{
		"-y", "-i", "/in/video.mp4", "-vn",
		"-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1",
		"/ws/audio.wav",
	}, args)
}

func TestFFmpeg_MuxArgsBurnIn(t *testing.T) {
	args := NewFfmpeg().muxArgs(MuxRequest{
		Video:         "/ws/video.mp4",
		Audio:         "/ws/mixed.wav",
		Subtitles:     "/ws/subtitles.srt",
		Output:        "/out/result_ja.mp4",
		BurnSubtitles: true,
	})

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i /ws/video.mp4 -i /ws/mixed.wav")
	assert.Contains(t, joined, "-map 0:v:0 -map 1:a:0")
	assert.Contains(t, joined, "-vf subtitles=/ws/subtitles.srt:force_style='FontName=Hiragino Sans,FontSize=24,PrimaryColour=&HFFFFFF,OutlineColour=&H000000,Outline=2'")
	assert.Contains(t, joined, "-c:v libx264 -crf 23")
	assert.Contains(t, joined, "-c:a aac -b:a 192k")
	assert.Equal(t, "/out/result_ja.mp4", args[len(args)-1])
	assert.NotContains(t, joined, "amix", "ffmpeg never mixes audio")
}

func TestFFmpeg_MuxArgsSoftSubtitles(t *testing.T) {
	args := NewFfmpeg().muxArgs(MuxRequest{
		Video:            "/ws/video.mp4",
		Subtitles:        "/ws/subtitles.srt",
		Output:           "/out/o.mp4",
		SubtitleLanguage: language.Japanese,
		CRF:              18,
	})

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i /ws/video.mp4 -i /ws/subtitles.srt")
	assert.Contains(t, joined, "-map 0:v:0 -map 0:a:0? -map 1:s:0 -c:v copy -c:s mov_text")
	assert.Contains(t, joined, "-metadata:s:s:0 language=jpn")
	assert.NotContains(t, joined, "-vf")
}

func TestEscapeFilterPath(t *testing.T) {
	assert.Equal(t, "/tmp/a.srt", escapeFilterPath("/tmp/a.srt"))
	assert.Equal(t, `C\\:/subs/a.srt`, escapeFilterPath("C:/subs/a.srt"))
}

func TestFFmpeg_Split(t *testing.T) {
	// The fake writes three files using the printf pattern passed last.
	installFake(t, "ffmpeg", `for last; do :; done
for i in 0 1 2; do : > "$(printf "$last" "$i")"; done
`)

	dir := filepath.Join(t.TempDir(), "chunks")
	chunks, err := NewFfmpeg().Split(context.Background(), "/ws/audio.wav", dir, 600)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, filepath.Join(dir, "chunk_000.wav"), chunks[0])
	assert.Equal(t, filepath.Join(dir, "chunk_002.wav"), chunks[2])

	_, err = NewFfmpeg().Split(context.Background(), "/ws/audio.wav", dir, 0)
	assert.Error(t, err)
}

func TestFFmpeg_RunReportsStderr(t *testing.T) {
	installFake(t, "ffmpeg", "echo 'Invalid data found when processing input' >&2\nexit 1\n")

	err := NewFfmpeg().ExtractAudio(context.Background(), "bad.mp4", filepath.Join(t.TempDir(), "a.wav"), 16000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid data found")
}

// TestErrorCases tests error handling
func TestErrorCases(t *testing.T) {
	t.Setenv("PATH", "")

	_, err := NewFfmpeg().Probe(context.Background(), "test.mp4")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ffprobe")

	err = NewFfmpeg().Mux(context.Background(), MuxRequest{})
	assert.Error(t, err)
}

// TestRealFFProbe tests with actual ffprobe if available
func TestRealFFProbe(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping test that requires actual ffprobe")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available, skipping real test")
	}

	_, err := NewFfmpeg().Probe(context.Background(), filepath.Join(t.TempDir(), "missing-input.mkv"))
	assert.Error(t, err)
}
