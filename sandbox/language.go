package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/isdmx/plotbox/config"
)

// Language describes how scripts of one language are staged and which image runs them.
type Language struct {
	Name       string
	Image      string
	ScriptFile string
	Env        map[string]string
}

// Languages maps language names to their runtime description.
type Languages map[string]Language

// LanguagesFromConfig builds the language table from configuration.
func LanguagesFromConfig(cfg *config.Config) Languages {
	langs := make(Languages, len(cfg.Languages))
	for name, l := range cfg.Languages {
		env := make(map[string]string, len(l.Environment))
		for k, v := range l.Environment {
			// viper lower-cases map keys; environment names are upper case by convention.
			env[strings.ToUpper(k)] = v
		}
		langs[name] = Language{
			Name:       name,
			Image:      l.Image,
			ScriptFile: l.ScriptFile,
			Env:        env,
		}
	}
	return langs
}

// Lookup returns the description of language. The image depends on nothing else.
func (l Languages) Lookup(language string) (Language, error) {
	lang, ok := l[language]
	if !ok {
		return Language{}, fmt.Errorf("unsupported language: %s", language)
	}
	if lang.Image == "" {
		return Language{}, fmt.Errorf("no image configured for language: %s", language)
	}
	if lang.ScriptFile == "" || filepath.Base(lang.ScriptFile) != lang.ScriptFile {
		return Language{}, fmt.Errorf("invalid script file for language %s: %q", language, lang.ScriptFile)
	}
	return lang, nil
}
