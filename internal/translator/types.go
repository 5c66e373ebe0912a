package translator

import (
	"context"

	"golang.org/x/text/language"
)

// Translator maps source texts to target texts of the same length and order.
type Translator interface {
	Translate(ctx context.Context, texts []string, source, target language.Tag) ([]string, error)
}
