package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/media"
)

type dirStore string

func (d dirStore) ChunkDir() string { return string(d) }

type fakeSplitter struct {
	chunks    []string
	durations map[string]float64
}

func (f *fakeSplitter) Probe(ctx context.Context, path string) (media.Info, error) {
	return media.Info{Duration: f.durations[filepath.Base(path)]}, nil
}

func (f *fakeSplitter) Split(ctx context.Context, input, toDir string, chunkSeconds int) ([]string, error) {
	return f.chunks, nil
}

type segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func groqServer(t *testing.T, replies map[string]map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer groq-key", r.Header.Get("Authorization"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		assert.Equal(t, "segment", r.FormValue("timestamp_granularities[]"))
		assert.Equal(t, DefaultModel, r.FormValue("model"))

		_, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		reply, ok := replies[header.Filename]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(reply)
	}))
}

func writeAudio(t *testing.T, dir, name string, size int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0o644))
	return p
}

func TestGroqTranscribeSingleFile(t *testing.T) {
	server := groqServer(t, map[string]map[string]any{
		"audio.wav": {
			"text":     "Hello there. General Kenobi.",
			"language": "english",
			"duration": 4.2,
			"segments": []segment{{0, 1.5, " Hello there. "}, {1.5, 4.0, "General Kenobi."}, {4.0, 4.2, "  "}},
		},
	})
	defer server.Close()

	g, err := NewGroq(Config{APIURL: server.URL, APIKey: "groq-key"}, nil)
	require.NoError(t, err)

	audio := writeAudio(t, t.TempDir(), "audio.wav", 128)
	result, err := g.Transcribe(context.Background(), audio, nil)
	require.NoError(t, err)

	require.Len(t, result.Segments, 2)
	assert.Equal(t, "Hello there.", result.Segments[0].Text)
	assert.Equal(t, 4.0, result.Segments[1].End)
	assert.Equal(t, language.English, result.Language)
	assert.Equal(t, 4.2, result.Duration)
}

func TestGroqTranscribeChunksAreReOffset(t *testing.T) {
	dir := t.TempDir()
	chunk0 := writeAudio(t, dir, "chunk_000.wav", 16)
	chunk1 := writeAudio(t, dir, "chunk_001.wav", 16)

	server := groqServer(t, map[string]map[string]any{
		"chunk_000.wav": {"text": "first", "duration": 599, "segments": []segment{{0, 2, "This is the first part of a very long recording about the weather."}}},
		"chunk_001.wav": {"text": "second", "duration": 299, "segments": []segment{{1, 3, "And this is the second part of the same long recording."}}},
	})
	defer server.Close()

	splitter := &fakeSplitter{
		chunks:    []string{chunk0, chunk1},
		durations: map[string]float64{"chunk_000.wav": 600.25, "chunk_001.wav": 300},
	}
	g, err := NewGroq(Config{APIURL: server.URL, APIKey: "groq-key", MaxUploadBytes: 64}, splitter)
	require.NoError(t, err)

	audio := writeAudio(t, dir, "audio.wav", 1024)
	result, err := g.Transcribe(context.Background(), audio, dirStore(dir))
	require.NoError(t, err)

	require.Len(t, result.Segments, 2)
	assert.Equal(t, 0.0, result.Segments[0].Start)
	assert.InDelta(t, 601.25, result.Segments[1].Start, 1e-9)
	assert.InDelta(t, 603.25, result.Segments[1].End, 1e-9)
	assert.InDelta(t, 900.25, result.Duration, 1e-9)
	assert.Equal(t, language.English, result.Language, "detected from text when the API omits it")
}

func TestGroqTranscribeFailure(t *testing.T) {
	server := groqServer(t, nil)
	defer server.Close()

	g, err := NewGroq(Config{APIURL: server.URL, APIKey: "groq-key"}, nil)
	require.NoError(t, err)

	_, err = g.Transcribe(context.Background(), writeAudio(t, t.TempDir(), "audio.wav", 8), nil)
	assert.True(t, errs.IsKind(err, errs.TranscriptionFailed))

	_, err = g.Transcribe(context.Background(), "/does/not/exist.wav", nil)
	assert.True(t, errs.IsKind(err, errs.TranscriptionFailed))

	_, err = NewGroq(Config{}, nil)
	assert.True(t, errs.IsKind(err, errs.Config))
}

func TestResolveLanguage(t *testing.T) {
	assert.Equal(t, language.Japanese, resolveLanguage("japanese", nil))
	assert.Equal(t, language.English, resolveLanguage("en", nil))
	assert.Equal(t, language.French, resolveLanguage("", []string{"Bonjour tout le monde, comment allez-vous aujourd'hui ?"}))
}
