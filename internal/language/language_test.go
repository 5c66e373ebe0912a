package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xlang "golang.org/x/text/language"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		speech   bool
	}{
		{in: "Japanese", wantName: "Japanese", speech: true},
		{in: "japanese", wantName: "Japanese", speech: true},
		{in: "ja", wantName: "Japanese", speech: true},
		{in: "ja-JP", wantName: "Japanese", speech: true},
		{in: "en-IN", wantName: "English_India", speech: true},
		{in: "en-GB", wantName: "English", speech: true},
		{in: "zh", wantName: "Chinese", speech: false},
		{in: "Chinese", wantName: "Chinese", speech: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			l, err := Lookup(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, l.Name)
			assert.Equal(t, tt.speech, l.Speech)
		})
	}
}

func TestLookupUnsupported(t *testing.T) {
	for _, in := range []string{"Klingon!", "sw"} {
		_, err := Lookup(in)
		assert.True(t, errs.IsKind(err, errs.Unsupported), in)
	}
}

func TestFromTagAndDisplay(t *testing.T) {
	l, err := FromTag(xlang.Japanese)
	require.NoError(t, err)
	assert.Equal(t, "ja", l.Code)
	assert.Contains(t, l.DisplayName(), "Japanese")
}

func TestNamesSpeechFirst(t *testing.T) {
	names := Names()
	require.Len(t, names, len(Supported))
	assert.Equal(t, "Chinese", names[len(names)-1])
}

func TestLookupVoice(t *testing.T) {
	v, err := LookupVoice("kore")
	require.NoError(t, err)
	assert.Equal(t, "Kore", v.Name)

	v, err = LookupVoice("")
	require.NoError(t, err)
	assert.Equal(t, DefaultVoice, v.Name)

	_, err = LookupVoice("HAL")
	assert.True(t, errs.IsKind(err, errs.Unsupported))
}
