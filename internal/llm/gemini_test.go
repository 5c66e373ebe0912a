package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiGenerateContent(t *testing.T) {
	var got GenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/m1:generateContent", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-goog-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"a\":"},{"text":"1}"}]}}]}`))
	}))
	defer server.Close()

	client, err := NewGeminiClient("k", server.URL+"/", time.Second)
	require.NoError(t, err)

	resp, err := client.GenerateContent(context.Background(), "m1", GenerateRequest{
		Contents:         []Content{{Parts: []Part{{Text: "hi"}}}},
		GenerationConfig: GenerationConfig{ResponseMimeType: "application/json"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, resp.Text())
	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMimeType)
}

func TestGeminiStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewGeminiClient("k", server.URL, 0)
	require.NoError(t, err)

	_, err = client.GenerateContent(context.Background(), "m", GenerateRequest{})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.True(t, statusErr.Temporary())

	_, err = NewGeminiClient("", "", 0)
	assert.Error(t, err)
	assert.Equal(t, "", (*GenerateResponse)(nil).Text())
}
