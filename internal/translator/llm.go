package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/llm"
	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

// inlineBreakerPlaceholder replaces line breaks inside one caption so the
// model cannot mistake them for caption boundaries.
const inlineBreakerPlaceholder = "%%inline_breaker%%"

const defaultBatchSize = 10

type chatClient interface {
	ChatCompletion(ctx context.Context, messages []llm.Message, opts *llm.ChatCompletionOptions) (*llm.ChatResponse, error)
}

type llmTranslator struct {
	client    chatClient
	batchSize int
}

// NewLLMTranslator translates in batches over an OpenAI-compatible chat API.
func NewLLMTranslator(client chatClient, batchSize int) Translator {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &llmTranslator{client: client, batchSize: batchSize}
}

func (t *llmTranslator) Translate(ctx context.Context, texts []string, source, target language.Tag) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	sourceName, targetName := languageName(source), languageName(target)
	prepared := make([]string, len(texts))
	for i, text := range texts {
		prepared[i] = strings.ReplaceAll(strings.TrimSpace(text), "\n", inlineBreakerPlaceholder)
	}

	out, err := t.batchTranslate(ctx, prepared, sourceName, targetName, t.batchSize, 0, len(prepared))
	if err != nil {
		return nil, err
	}

	for i := range out {
		if strings.TrimSpace(out[i]) == "" && prepared[i] != "" {
			log.Warn("Line %d came back blank; keeping source text", i+1)
			out[i] = prepared[i]
		}
	}
	fixInlineBreakers(prepared, out)
	for i := range out {
		out[i] = strings.ReplaceAll(out[i], inlineBreakerPlaceholder, "\n")
	}
	log.Info("Translated %d segments %s -> %s", len(out), sourceName, targetName)
	return out, nil
}

// batchTranslate halves the batch whenever the model returns the wrong
// number of lines. A single line that still cannot be parsed keeps its
// source text.
func (t *llmTranslator) batchTranslate(
	ctx context.Context,
	texts []string,
	sourceName, targetName string,
	batchSize int,
	startIncluded, endExcluded int,
) ([]string, error) {
	var all []string

	for i := startIncluded; i < endExcluded; i += batchSize {
		end := min(i+batchSize, endExcluded)
		batch := texts[i:end]

		translations, err := t.translateBatch(ctx, batch, sourceName, targetName)
		if err != nil && !isOutputMismatch(err) {
			return nil, errs.Wrap(err, errs.TranslationFailed, "translation request failed").
				With("lines", fmt.Sprintf("%d-%d", i+1, end))
		}
		if err != nil {
			if len(batch) == 1 {
				log.Warn("Line %d could not be translated (%v); keeping source text", i+1, err)
				translations = []string{batch[0]}
			} else {
				half := max(batchSize/2, 1)
				log.Warn("Lines %d-%d: %v, retrying with batch size %d", i+1, end, err, half)
				translations, err = t.batchTranslate(ctx, texts, sourceName, targetName, half, i, end)
				if err != nil {
					return nil, err
				}
			}
		}
		all = append(all, translations...)
	}
	return all, nil
}

func (t *llmTranslator) translateBatch(ctx context.Context, batch []string, sourceName, targetName string) ([]string, error) {
	userMessage, err := buildTranslationUserMessage(batch)
	if err != nil {
		return nil, err
	}

	opts := llm.NewChatCompletionOptions().
		WithSystemPrompt(buildContextPrompt(sourceName, targetName)).
		WithJSON()
	resp, err := t.client.ChatCompletion(ctx, []llm.Message{{Role: "user", Content: userMessage}}, opts)
	if err != nil {
		return nil, err
	}
	content, err := resp.Content()
	if err != nil {
		return nil, &outputMismatch{err: err}
	}

	out, err := parseTranslationOutput(content, len(batch))
	if err != nil {
		return nil, &outputMismatch{err: err}
	}
	return out, nil
}

type outputMismatch struct{ err error }

func (e *outputMismatch) Error() string { return e.err.Error() }
func (e *outputMismatch) Unwrap() error { return e.err }

func isOutputMismatch(err error) bool {
	_, ok := err.(*outputMismatch)
	return ok
}

type indexedLine struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

func buildTranslationUserMessage(texts []string) (string, error) {
	payload := struct {
		Lines []indexedLine `json:"lines"`
	}{Lines: make([]indexedLine, len(texts))}
	for i, text := range texts {
		payload.Lines[i] = indexedLine{Index: i + 1, Text: text}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal translation input: %w", err)
	}
	return string(data), nil
}

// parseTranslationOutput accepts [{"index","text"}], {"lines": [...]} or a
// plain string array, and returns exactly want lines in index order.
func parseTranslationOutput(content string, want int) ([]string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty translation output")
	}

	var lines []indexedLine
	if err := json.Unmarshal([]byte(content), &lines); err != nil {
		var wrapped struct {
			Lines []indexedLine `json:"lines"`
		}
		if err := json.Unmarshal([]byte(content), &wrapped); err == nil && len(wrapped.Lines) > 0 {
			lines = wrapped.Lines
		} else {
			var plain []string
			if err := json.Unmarshal([]byte(content), &plain); err != nil {
				return nil, fmt.Errorf("translation output is not valid json: %w", err)
			}
			if len(plain) != want {
				return nil, fmt.Errorf("translation count mismatch: got %d, want %d", len(plain), want)
			}
			return plain, nil
		}
	}

	if len(lines) != want {
		return nil, fmt.Errorf("translation count mismatch: got %d, want %d", len(lines), want)
	}
	seen := make(map[int]bool, len(lines))
	for _, l := range lines {
		if l.Index < 1 || l.Index > want {
			return nil, fmt.Errorf("translation index %d out of range 1-%d", l.Index, want)
		}
		if seen[l.Index] {
			return nil, fmt.Errorf("duplicate translation index %d", l.Index)
		}
		seen[l.Index] = true
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Index < lines[j].Index })

	out := make([]string, want)
	for i, l := range lines {
		out[i] = l.Text
	}
	return out, nil
}

// fixInlineBreakers makes every translation carry as many inline breaks
// as its source: missing ones are inserted near the middle, extra ones are
// dropped from the end.
func fixInlineBreakers(source, translated []string) {
	for i := range translated {
		if i >= len(source) {
			return
		}
		want := strings.Count(source[i], inlineBreakerPlaceholder)
		have := strings.Count(translated[i], inlineBreakerPlaceholder)

		for have > want {
			idx := strings.LastIndex(translated[i], inlineBreakerPlaceholder)
			translated[i] = translated[i][:idx] + translated[i][idx+len(inlineBreakerPlaceholder):]
			have--
		}
		for have < want {
			runes := []rune(translated[i])
			mid := len(runes) / 2
			translated[i] = string(runes[:mid]) + inlineBreakerPlaceholder + string(runes[mid:])
			have++
		}
	}
}

func buildContextPrompt(sourceName, targetName string) string {
	var prompt strings.Builder

	prompt.WriteString("You translate the speech of a short social media video from " + sourceName + " to " + targetName + ".\n")
	prompt.WriteString("Each translation is shown as a subtitle and read aloud by a speech synthesizer over the original timing.\n\n")

	prompt.WriteString("=== TRANSLATION GUIDELINES ===\n")
	prompt.WriteString("1. Translate naturally and concisely so the spoken line fits the time of the original\n")
	prompt.WriteString("2. Keep names, numbers and hashtags intact\n")
	prompt.WriteString("3. Do NOT merge, split, reorder, or drop lines\n")
	prompt.WriteString("4. MUST preserve the count of " + inlineBreakerPlaceholder + " markers in each line\n")
	prompt.WriteString("5. If an input line is empty, output text for that index MUST be an empty string\n")

	prompt.WriteString("\n=== OUTPUT FORMAT ===\n")
	prompt.WriteString(`Return ONLY a JSON object {"lines": [{"index": <input index>, "text": "<translation>"}, ...]} with one entry per input line.` + "\n")
	prompt.WriteString("Do NOT output literal newline characters in JSON text.\n")
	prompt.WriteString("Do not include any explanations, notes, or additional text.\n")

	return prompt.String()
}

func languageName(tag language.Tag) string {
	if tag == language.Und {
		return "the source language"
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return tag.String()
}
