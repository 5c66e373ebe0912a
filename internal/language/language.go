// Package language lists the target languages and synthesis voices the
// pipeline supports.
package language

import (
	"slices"
	"strings"

	xlang "golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
)

type Language struct {
	// Name is the CLI name, e.g. "Japanese" or "English_India".
	Name string
	Tag  xlang.Tag
	// Code is used in output file names.
	Code string
	// Speech is false for languages that get subtitles only.
	Speech bool
}

func (l Language) DisplayName() string {
	if name := display.English.Tags().Name(l.Tag); name != "" {
		return name
	}
	return l.Name
}

func speech(name, bcp47, code string) Language {
	return Language{Name: name, Tag: xlang.MustParse(bcp47), Code: code, Speech: true}
}

// Supported is ordered for display.
var Supported = []Language{
	speech("Arabic", "ar-EG", "ar"),
	speech("Bengali", "bn-BD", "bn"),
	speech("Dutch", "nl-NL", "nl"),
	speech("English", "en-US", "en"),
	speech("English_India", "en-IN", "en-IN"),
	speech("French", "fr-FR", "fr"),
	speech("German", "de-DE", "de"),
	speech("Hindi", "hi-IN", "hi"),
	speech("Indonesian", "id-ID", "id"),
	speech("Italian", "it-IT", "it"),
	speech("Japanese", "ja-JP", "ja"),
	speech("Korean", "ko-KR", "ko"),
	speech("Marathi", "mr-IN", "mr"),
	speech("Polish", "pl-PL", "pl"),
	speech("Portuguese", "pt-BR", "pt"),
	speech("Romanian", "ro-RO", "ro"),
	speech("Russian", "ru-RU", "ru"),
	speech("Spanish", "es-US", "es"),
	speech("Tamil", "ta-IN", "ta"),
	speech("Telugu", "te-IN", "te"),
	speech("Thai", "th-TH", "th"),
	speech("Turkish", "tr-TR", "tr"),
	speech("Ukrainian", "uk-UA", "uk"),
	speech("Vietnamese", "vi-VN", "vi"),
	{Name: "Chinese", Tag: xlang.Chinese, Code: "zh", Speech: false},
}

// Lookup resolves a CLI name, a file code or a BCP 47 tag. Tags that only
// share a base language ("en-GB") resolve to the first entry with that
// base.
func Lookup(s string) (Language, error) {
	s = strings.TrimSpace(s)
	for _, l := range Supported {
		if strings.EqualFold(l.Name, s) || strings.EqualFold(l.Code, s) || strings.EqualFold(l.Tag.String(), s) {
			return l, nil
		}
	}

	tag, err := xlang.Parse(s)
	if err != nil {
		return Language{}, errs.Newf(errs.Unsupported, "unknown language %q", s)
	}
	base, _ := tag.Base()
	for _, l := range Supported {
		if b, _ := l.Tag.Base(); b == base {
			return l, nil
		}
	}
	return Language{}, errs.Newf(errs.Unsupported, "language %q is not supported", s)
}

// FromTag is Lookup for an already parsed tag.
func FromTag(tag xlang.Tag) (Language, error) {
	return Lookup(tag.String())
}

// Names returns the CLI names, speech languages first.
func Names() []string {
	names := make([]string, 0, len(Supported))
	for _, l := range Supported {
		names = append(names, l.Name)
	}
	slices.SortStableFunc(names, func(a, b string) int {
		la, _ := Lookup(a)
		lb, _ := Lookup(b)
		switch {
		case la.Speech && !lb.Speech:
			return -1
		case !la.Speech && lb.Speech:
			return 1
		default:
			return 0
		}
	})
	return names
}
