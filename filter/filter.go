// Package filter implements the lexical pre-execution check on submitted scripts.
//
// The filter is a cheap fast-fail for obviously unwanted constructs. It is
// not a security boundary: containment comes from the container runtime.
package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/isdmx/plotbox/config"
	"github.com/isdmx/plotbox/logger"
)

// ErrUnsupportedLanguage is returned for a language without a rule list.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// RejectedError reports the first forbidden substring found in a script.
type RejectedError struct {
	Language string
	Keyword  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("use of '%s' is not allowed in %s scripts", e.Keyword, e.Language)
}

// Filter holds the ordered forbidden substrings for each language.
type Filter struct {
	logger *zap.Logger
	rules  map[string][]string
}

// New creates a Filter from language -> ordered keyword lists. The lists are copied.
func New(logger *zap.Logger, rules map[string][]string) *Filter {
	copied := make(map[string][]string, len(rules))
	for lang, keywords := range rules {
		kw := make([]string, 0, len(keywords))
		for _, k := range keywords {
			if k != "" {
				kw = append(kw, k)
			}
		}
		copied[lang] = kw
	}
	return &Filter{logger: logger, rules: copied}
}

// NewFromConfig builds a Filter from the blocked_keywords of every configured language.
func NewFromConfig(logger *zap.Logger, cfg *config.Config) *Filter {
	rules := make(map[string][]string, len(cfg.Languages))
	for name, lang := range cfg.Languages {
		rules[name] = lang.BlockedKeywords
	}
	return New(logger, rules)
}

// Check scans script for a literal, case-sensitive occurrence of any forbidden
// substring of language and returns a *RejectedError for the first match in
// list order.
func (f *Filter) Check(ctx context.Context, script, language string) error {
	keywords, ok := f.rules[language]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	for _, keyword := range keywords {
		if strings.Contains(script, keyword) {
			logger.FromContext(ctx, f.logger).Warn("script rejected by filter",
				zap.String("language", language),
				zap.String("keyword", keyword))
			return &RejectedError{Language: language, Keyword: keyword}
		}
	}
	return nil
}

// Keywords returns a copy of the rule list for language.
func (f *Filter) Keywords(language string) []string {
	return append([]string(nil), f.rules[language]...)
}
