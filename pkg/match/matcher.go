// Package match selects applications by job name and attributes.
//
// Name patterns use doublestar glob syntax. Job names are flat strings, so
// "*" and "**" behave the same unless the name itself contains '/'.
package match

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher evaluates name patterns against job names.
//
// A Matcher is configured with include and exclude patterns:
//   - Include patterns: name must match at least one
//   - Exclude patterns: name must not match any
//
// The Matcher is safe for concurrent use after creation.
type Matcher struct {
	includes   []string
	excludes   []string
	ignoreCase bool
}

// Config configures a Matcher.
type Config struct {
	// Includes are glob patterns that names must match (at least one).
	Includes []string

	// Excludes are glob patterns that names must not match (any).
	Excludes []string

	// IgnoreCase folds both patterns and names to lower case.
	IgnoreCase bool
}

// Errors returned by Matcher operations.
var (
	// ErrNoIncludes is returned when no include patterns are provided.
	ErrNoIncludes = errors.New("at least one include pattern is required")

	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New creates a Matcher. Blank patterns are skipped.
func New(cfg Config) (*Matcher, error) {
	includes, err := compile(cfg.Includes, cfg.IgnoreCase)
	if err != nil {
		return nil, err
	}
	if len(includes) == 0 {
		return nil, ErrNoIncludes
	}
	excludes, err := compile(cfg.Excludes, cfg.IgnoreCase)
	if err != nil {
		return nil, err
	}
	return &Matcher{includes: includes, excludes: excludes, ignoreCase: cfg.IgnoreCase}, nil
}

// MatchAll returns a Matcher that accepts every name.
func MatchAll() *Matcher {
	return &Matcher{includes: []string{"**"}}
}

func compile(raw []string, fold bool) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if fold {
			p = strings.ToLower(p)
		}
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
		}
		out = append(out, p)
	}
	return out, nil
}

// Match returns true if name matches an include and no exclude.
func (m *Matcher) Match(name string) bool {
	if m.ignoreCase {
		name = strings.ToLower(name)
	}

	matched := false
	for _, inc := range m.includes {
		if matchPattern(inc, name) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	for _, exc := range m.excludes {
		if matchPattern(exc, name) {
			return false
		}
	}
	return true
}

// IncludePatterns returns the compiled include patterns.
func (m *Matcher) IncludePatterns() []string {
	return append([]string(nil), m.includes...)
}

// ExcludePatterns returns the compiled exclude patterns.
func (m *Matcher) ExcludePatterns() []string {
	return append([]string(nil), m.excludes...)
}

// matchPattern matches a name against a doublestar pattern.
func matchPattern(pattern, name string) bool {
	matched, err := doublestar.Match(pattern, name)
	if err != nil {
		// Validated at construction.
		return false
	}
	return matched
}
