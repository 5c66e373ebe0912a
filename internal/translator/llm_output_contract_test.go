package translator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTranslationUserMessage_IndexedLines(t *testing.T) {
	t.Parallel()

	payload, err := buildTranslationUserMessage([]string{"line-1", "line-2"})
	require.NoError(t, err)

	var decoded struct {
		Lines []struct {
			Index int    `json:"index"`
			Text  string `json:"text"`
		} `json:"lines"`
	}
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	require.Len(t, decoded.Lines, 2)
	assert.Equal(t, 1, decoded.Lines[0].Index)
	assert.Equal(t, "line-1", decoded.Lines[0].Text)
	assert.Equal(t, 2, decoded.Lines[1].Index)
	assert.Equal(t, "line-2", decoded.Lines[1].Text)
}

func TestParseTranslationOutput_IndexedJSONReordered(t *testing.T) {
	t.Parallel()

	got, err := parseTranslationOutput(`[{"index":2,"text":"世界"},{"index":1,"text":"こんにちは"}]`, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"こんにちは", "世界"}, got)
}

func TestParseTranslationOutput_WrappedObject(t *testing.T) {
	t.Parallel()

	got, err := parseTranslationOutput("```json\n{\"lines\":[{\"index\":1,\"text\":\"はい\"}]}\n```", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"はい"}, got)
}

func TestParseTranslationOutput_StringArrayFallback(t *testing.T) {
	t.Parallel()

	got, err := parseTranslationOutput(`["こんにちは","世界"]`, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"こんにちは", "世界"}, got)
}

func TestParseTranslationOutput_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    int
		errText string
	}{
		{name: "plain text", content: "こんにちは\n世界", want: 2, errText: "json"},
		{name: "empty", content: "   ", want: 1, errText: "empty"},
		{name: "count mismatch", content: `[{"index":1,"text":"a"}]`, want: 2, errText: "count mismatch"},
		{name: "duplicate index", content: `[{"index":1,"text":"a"},{"index":1,"text":"b"}]`, want: 2, errText: "duplicate"},
		{name: "index out of range", content: `[{"index":1,"text":"a"},{"index":5,"text":"b"}]`, want: 2, errText: "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseTranslationOutput(tt.content, tt.want)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestFixInlineBreakers(t *testing.T) {
	t.Parallel()

	source := []string{
		"first" + inlineBreakerPlaceholder + "second",
		"single",
		"a" + inlineBreakerPlaceholder + "b",
	}
	translated := []string{
		"いちにさん",
		"ひとつ" + inlineBreakerPlaceholder + "だけ",
		"あ" + inlineBreakerPlaceholder + "い",
	}

	fixInlineBreakers(source, translated)

	assert.Equal(t, 1, countBreakers(translated[0]))
	assert.Equal(t, "いち"+inlineBreakerPlaceholder+"にさん", translated[0])
	assert.Equal(t, "ひとつだけ", translated[1])
	assert.Equal(t, "あ"+inlineBreakerPlaceholder+"い", translated[2])
}

func countBreakers(s string) int {
	n := 0
	for i := 0; i+len(inlineBreakerPlaceholder) <= len(s); i++ {
		if s[i:i+len(inlineBreakerPlaceholder)] == inlineBreakerPlaceholder {
			n++
		}
	}
	return n
}
