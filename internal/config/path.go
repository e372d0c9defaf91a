// Package config builds the run configuration handed to every pipeline stage.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Path expansion errors.
var (
	ErrUnresolvedHome    = errors.New("home directory cannot be resolved")
	ErrUndefinedVariable = errors.New("path references an undefined environment variable")
	ErrUnsupportedTilde  = errors.New("only ~ and ~/ are supported")
)

// ExpandPath expands a leading ~ and $VAR references in a configured path.
// A path that cannot be fully expanded is an error rather than a literal.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~") {
		rest := path[1:]
		if rest != "" && rest[0] != '/' && rest[0] != filepath.Separator {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedTilde, path)
		}
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return "", fmt.Errorf("%w: %s", ErrUnresolvedHome, path)
		}
		path = filepath.Join(home, rest)
	}

	var missing []string
	expanded := os.Expand(path, func(name string) string {
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			missing = append(missing, name)
		}
		return value
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("%w: %s in %s", ErrUndefinedVariable, strings.Join(missing, ", "), path)
	}
	return expanded, nil
}

// pathExpander expands config paths and remembers which keys failed so
// Validate can report them together.
type pathExpander struct {
	problems []string
}

func (p *pathExpander) expand(key, raw string) string {
	path, err := ExpandPath(raw)
	if err != nil {
		p.problems = append(p.problems, fmt.Sprintf("%s: %v", key, err))
		return raw
	}
	return path
}
