package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/noricha-vr/twitter-video-translator/internal/audio"
	"github.com/noricha-vr/twitter-video-translator/internal/llm"
	"github.com/noricha-vr/twitter-video-translator/internal/timeline"
)

const (
	DefaultGeminiModel = "gemini-2.5-flash-preview-tts"
	DefaultSampleRate  = 24000
)

type GeminiConfig struct {
	APIURL     string
	APIKey     string
	Model      string
	SampleRate int
	Timeout    time.Duration
}

// GeminiTTS requests an AUDIO response with a prebuilt voice and decodes
// the inline PCM payload.
type GeminiTTS struct {
	client     *llm.GeminiClient
	model      string
	sampleRate int
}

func NewGeminiTTS(config GeminiConfig) (*GeminiTTS, error) {
	client, err := llm.NewGeminiClient(config.APIKey, config.APIURL, config.Timeout)
	if err != nil {
		return nil, err
	}
	g := &GeminiTTS{client: client, model: config.Model, sampleRate: config.SampleRate}
	if g.model == "" {
		g.model = DefaultGeminiModel
	}
	if g.sampleRate <= 0 {
		g.sampleRate = DefaultSampleRate
	}
	return g, nil
}

func (g *GeminiTTS) Synthesize(ctx context.Context, text string, style *timeline.StyleHint, voice string) (*audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, Permanent(fmt.Errorf("empty text"))
	}

	response, err := g.client.GenerateContent(ctx, g.model, llm.GenerateRequest{
		Contents: []llm.Content{{Role: "user", Parts: []llm.Part{{Text: Prompt(text, style)}}}},
		GenerationConfig: llm.GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &llm.SpeechConfig{
				VoiceConfig: llm.VoiceConfig{PrebuiltVoiceConfig: llm.PrebuiltVoiceConfig{VoiceName: voice}},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	var pcm bytes.Buffer
	mimeType := ""
	for _, cand := range response.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode audio payload: %w", err)
			}
			if mimeType == "" {
				mimeType = p.InlineData.MimeType
			}
			pcm.Write(data)
		}
	}
	if pcm.Len() == 0 {
		return nil, fmt.Errorf("no audio in response")
	}

	return audio.DecodePCM16(pcm.Bytes(), audio.RateFromMIME(mimeType, g.sampleRate))
}
