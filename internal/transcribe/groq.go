package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/llm"
	"github.com/noricha-vr/twitter-video-translator/internal/media"
	"github.com/noricha-vr/twitter-video-translator/internal/timeline"
	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

const (
	DefaultGroqURL   = "https://api.groq.com/openai/v1"
	DefaultModel     = "whisper-large-v3-turbo"
	DefaultMaxUpload = 25 << 20
)

type Config struct {
	APIURL string
	APIKey string
	Model  string
	// Language forces the source language; empty lets the model detect it.
	Language       string
	MaxUploadBytes int64
	ChunkSeconds   int
	Timeout        time.Duration
}

// Splitter is the part of the ffmpeg wrapper used for chunking.
type Splitter interface {
	Probe(ctx context.Context, path string) (media.Info, error)
	Split(ctx context.Context, input, toDir string, chunkSeconds int) ([]string, error)
}

// Groq calls the Whisper transcription endpoint with verbose_json and
// segment timestamps.
type Groq struct {
	config     Config
	httpClient *http.Client
	splitter   Splitter
}

func NewGroq(config Config, splitter Splitter) (*Groq, error) {
	if config.APIKey == "" {
		return nil, errs.New(errs.Config, "groq API key is required")
	}
	if config.APIURL == "" {
		config.APIURL = DefaultGroqURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUpload
	}
	if config.ChunkSeconds <= 0 {
		config.ChunkSeconds = 600
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	return &Groq{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		splitter:   splitter,
	}, nil
}

type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (g *Groq) Transcribe(ctx context.Context, audioPath string, store ChunkStore) (Result, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return Result{}, errs.Wrap(err, errs.TranscriptionFailed, "audio file not readable")
	}

	chunks := []string{audioPath}
	if info.Size() > g.config.MaxUploadBytes {
		if g.splitter == nil || store == nil {
			return Result{}, errs.Newf(errs.TranscriptionFailed, "audio is %d bytes, above the %d byte upload limit", info.Size(), g.config.MaxUploadBytes)
		}
		log.Info("Audio is %.1f MB, splitting into %ds chunks", float64(info.Size())/(1<<20), g.config.ChunkSeconds)
		chunks, err = g.splitter.Split(ctx, audioPath, store.ChunkDir(), g.config.ChunkSeconds)
		if err != nil {
			return Result{}, errs.Wrap(err, errs.TranscriptionFailed, "split audio")
		}
	}

	var (
		result   Result
		offset   float64
		texts    []string
		reported string
	)
	for i, chunk := range chunks {
		resp, err := g.transcribeFile(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, errs.Wrap(ctx.Err(), errs.Canceled, "transcription canceled")
			}
			return Result{}, errs.Wrap(err, errs.TranscriptionFailed, "transcription request failed").
				With("chunk", i)
		}
		if reported == "" {
			reported = resp.Language
		}

		for _, s := range resp.Segments {
			text := strings.TrimSpace(s.Text)
			if text == "" {
				continue
			}
			result.Segments = append(result.Segments, timeline.Raw{Start: s.Start + offset, End: s.End + offset, Text: text})
			texts = append(texts, text)
		}

		offset += g.chunkDuration(ctx, chunk, resp)
		result.Text = strings.TrimSpace(result.Text + " " + strings.TrimSpace(resp.Text))
	}

	result.Duration = offset
	result.Language = resolveLanguage(reported, texts)
	log.Info("Transcribed %d segments (language: %s)", len(result.Segments), result.Language)
	return result, nil
}

// chunkDuration prefers the probed length of the chunk file, since the
// API duration is rounded.
func (g *Groq) chunkDuration(ctx context.Context, chunk string, resp *verboseResponse) float64 {
	if g.splitter != nil {
		if info, err := g.splitter.Probe(ctx, chunk); err == nil && info.Duration > 0 {
			return info.Duration
		}
	}
	if resp.Duration > 0 {
		return resp.Duration
	}
	if n := len(resp.Segments); n > 0 {
		return resp.Segments[n-1].End
	}
	return 0
}

func (g *Groq) transcribeFile(ctx context.Context, path string) (*verboseResponse, error) {
	f, err := llm.NewFileFromPath(path)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := f.ToMultipart(writer, "file"); err != nil {
		return nil, err
	}
	fields := [][2]string{
		{"model", g.config.Model},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
		{"temperature", "0"},
	}
	if g.config.Language != "" {
		fields = append(fields, [2]string{"language", g.config.Language})
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", field[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	url := strings.TrimRight(g.config.APIURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	log.Debug("Uploading %s (%d bytes)", filepath.Base(path), len(f.Content))
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &llm.StatusError{StatusCode: resp.StatusCode, Body: string(responseBody)}
	}

	var out verboseResponse
	if err := json.Unmarshal(responseBody, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}
