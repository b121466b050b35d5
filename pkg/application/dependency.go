package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrMalformedDependency indicates a dependency descriptor that is not valid JSON.
var ErrMalformedDependency = errors.New("malformed dependency descriptor")

// Exclusion removes a transitive artifact.
type Exclusion struct {
	GroupID    string `json:"groupId"`
	ArtifactID string `json:"artifactId"`
}

// Artifact is a Maven coordinate.
type Artifact struct {
	GroupID    string      `json:"groupId"`
	ArtifactID string      `json:"artifactId"`
	Version    string      `json:"version"`
	Classifier string      `json:"classifier,omitempty"`
	Exclusions []Exclusion `json:"exclusions,omitempty"`
}

// key is an order-insensitive canonical form of the artifact.
func (a Artifact) key() string {
	excl := make([]string, 0, len(a.Exclusions))
	for _, e := range a.Exclusions {
		excl = append(excl, e.GroupID+":"+e.ArtifactID)
	}
	slices.Sort(excl)
	return strings.Join([]string{a.GroupID, a.ArtifactID, a.Version, a.Classifier}, ":") +
		"|" + strings.Join(excl, ",")
}

// Dependency lists the external libraries a job needs: Maven artifacts and
// uploaded jars.
type Dependency struct {
	Pom []Artifact `json:"pom"`
	Jar []string   `json:"jar"`
}

// ParseDependency decodes a descriptor. Blank input is an empty descriptor.
func ParseDependency(blob string) (Dependency, error) {
	var d Dependency
	if strings.TrimSpace(blob) == "" {
		return d, nil
	}
	if err := json.Unmarshal([]byte(blob), &d); err != nil {
		return Dependency{}, fmt.Errorf("%w: %v", ErrMalformedDependency, err)
	}
	return d, nil
}

// IsEmpty reports a descriptor with no artifacts and no jars.
func (d Dependency) IsEmpty() bool {
	return len(d.Pom) == 0 && len(d.Jar) == 0
}

// Equal compares two descriptors ignoring list order.
func (d Dependency) Equal(other Dependency) bool {
	if len(d.Pom) != len(other.Pom) || len(d.Jar) != len(other.Jar) {
		return false
	}
	return slices.Equal(d.pomKeys(), other.pomKeys()) && slices.Equal(sorted(d.Jar), sorted(other.Jar))
}

func (d Dependency) pomKeys() []string {
	keys := make([]string, 0, len(d.Pom))
	for _, a := range d.Pom {
		keys = append(keys, a.key())
	}
	slices.Sort(keys)
	return keys
}

func sorted(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}
