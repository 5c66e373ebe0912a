package language

import (
	"strings"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
)

// Voice is a prebuilt speech voice.
type Voice struct {
	Name        string
	Description string
}

const DefaultVoice = "Aoede"

var Voices = []Voice{
	{"Zephyr", "Bright"},
	{"Puck", "Upbeat"},
	{"Charon", "Informative"},
	{"Kore", "Firm"},
	{"Fenrir", "Excitable"},
	{"Leda", "Youthful"},
	{"Orus", "Firm"},
	{"Aoede", "Breezy"},
	{"Callirrhoe", "Easy-going"},
	{"Autonoe", "Bright"},
	{"Enceladus", "Breathy"},
	{"Iapetus", "Clear"},
	{"Umbriel", "Easy-going"},
	{"Algieba", "Smooth"},
	{"Despina", "Smooth"},
	{"Erinome", "Clear"},
	{"Algenib", "Gravelly"},
	{"Rasalgethi", "Informative"},
	{"Laomedeia", "Upbeat"},
	{"Achernar", "Soft"},
	{"Alnilam", "Firm"},
	{"Schedar", "Even"},
	{"Gacrux", "Mature"},
	{"Pulcherrima", "Forward"},
	{"Achird", "Friendly"},
	{"Zubenelgenubi", "Casual"},
	{"Vindemiatrix", "Gentle"},
	{"Sadachbia", "Lively"},
	{"Sadaltager", "Knowledgeable"},
	{"Sulafat", "Warm"},
}

// RecommendedJapanese lists voices that read Japanese well.
var RecommendedJapanese = []string{"Aoede", "Kore", "Schedar", "Vindemiatrix", "Sulafat"}

// LookupVoice matches a voice name case-insensitively.
func LookupVoice(name string) (Voice, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultVoice
	}
	for _, v := range Voices {
		if strings.EqualFold(v.Name, name) {
			return v, nil
		}
	}
	return Voice{}, errs.Newf(errs.Unsupported, "unknown voice %q", name)
}
