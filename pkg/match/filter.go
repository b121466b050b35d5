package match

import (
	"errors"
	"fmt"
	"strings"

	"github.com/3leaps/streamctl/pkg/application"
	"github.com/3leaps/streamctl/pkg/enums"
)

// FilterConfig holds selection criteria from the CLI or an HTTP query.
// Enum criteria hold canonical names; an empty list places no constraint.
type FilterConfig struct {
	Names    []string `json:"names,omitempty" yaml:"names,omitempty"`
	Exclude  []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	States   []string `json:"states,omitempty" yaml:"states,omitempty"`
	Modes    []string `json:"modes,omitempty" yaml:"modes,omitempty"`
	JobTypes []string `json:"job_types,omitempty" yaml:"job_types,omitempty"`

	// TrackedOnly keeps records whose state is tracked.
	TrackedOnly bool `json:"tracked_only,omitempty" yaml:"tracked_only,omitempty"`
}

// ErrUnsupportedFilter indicates an unknown enum name in a filter.
var ErrUnsupportedFilter = errors.New("unsupported filter")

// Filter selects applications. The zero value is not usable; use NewFilter.
type Filter struct {
	names       *Matcher
	states      map[enums.AppState]struct{}
	modes       map[enums.ExecutionMode]struct{}
	jobTypes    map[enums.JobType]struct{}
	trackedOnly bool
}

// NewFilter compiles a filter. No name patterns selects every name.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	f := &Filter{trackedOnly: cfg.TrackedOnly}

	if len(cfg.Names) == 0 && len(cfg.Exclude) == 0 {
		f.names = MatchAll()
	} else {
		includes := cfg.Names
		if len(includes) == 0 {
			includes = []string{"**"}
		}
		m, err := New(Config{Includes: includes, Excludes: cfg.Exclude})
		if err != nil {
			return nil, err
		}
		f.names = m
	}

	var err error
	if f.states, err = parseSet(cfg.States, enums.ParseAppState); err != nil {
		return nil, fmt.Errorf("%w: state: %w", ErrUnsupportedFilter, err)
	}
	if f.modes, err = parseSet(cfg.Modes, enums.ParseExecutionMode); err != nil {
		return nil, fmt.Errorf("%w: mode: %w", ErrUnsupportedFilter, err)
	}
	if f.jobTypes, err = parseSet(cfg.JobTypes, enums.ParseJobType); err != nil {
		return nil, fmt.Errorf("%w: job type: %w", ErrUnsupportedFilter, err)
	}
	return f, nil
}

func parseSet[T comparable](names []string, parse func(string) (T, error)) (map[T]struct{}, error) {
	if len(names) == 0 {
		return nil, nil
	}
	set := make(map[T]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		v, err := parse(n)
		if err != nil {
			return nil, err
		}
		set[v] = struct{}{}
	}
	return set, nil
}

func contains[T comparable](set map[T]struct{}, v T) bool {
	if set == nil {
		return true
	}
	_, ok := set[v]
	return ok
}

// Match reports whether app passes every criterion.
func (f *Filter) Match(app *application.Application) bool {
	if app == nil {
		return false
	}
	if f.trackedOnly && !app.Tracking() {
		return false
	}
	if !contains(f.states, app.State()) ||
		!contains(f.modes, app.ExecutionMode) ||
		!contains(f.jobTypes, app.JobType) {
		return false
	}
	return f.names.Match(app.JobName)
}

// Apply returns the matching applications in input order.
func (f *Filter) Apply(apps []*application.Application) []*application.Application {
	out := make([]*application.Application, 0, len(apps))
	for _, a := range apps {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out
}

// String returns a human-readable description of the filter.
func (f *Filter) String() string {
	parts := []string{"names=" + strings.Join(f.names.IncludePatterns(), ",")}
	if ex := f.names.ExcludePatterns(); len(ex) > 0 {
		parts = append(parts, "exclude="+strings.Join(ex, ","))
	}
	if len(f.states) > 0 {
		parts = append(parts, fmt.Sprintf("states=%d", len(f.states)))
	}
	if len(f.modes) > 0 {
		parts = append(parts, fmt.Sprintf("modes=%d", len(f.modes)))
	}
	if len(f.jobTypes) > 0 {
		parts = append(parts, fmt.Sprintf("job_types=%d", len(f.jobTypes)))
	}
	if f.trackedOnly {
		parts = append(parts, "tracked")
	}
	return strings.Join(parts, " ")
}
