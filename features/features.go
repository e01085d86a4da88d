// ABOUTME: Feature flag definitions with deterministic percentage rollout
// ABOUTME: Loads flags from YAML and buckets users by hashing flag name and user id

package features

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/edusphere/portal-gateway/models"
)

//go:embed default_flags.yaml
var defaultFlags []byte

// Flag is one feature switch
type Flag struct {
	Name              string        `yaml:"name"`
	Enabled           bool          `yaml:"enabled"`
	RolloutPercentage int           `yaml:"rollout_percentage"`
	Roles             []models.Role `yaml:"roles,omitempty"`
}

type flagFile struct {
	Flags []Flag `yaml:"flags"`
}

// Set is an immutable collection of flags keyed by name
type Set struct {
	flags map[string]Flag
}

// Load reads flags from path, or the embedded defaults when path is empty
func Load(path string) (*Set, error) {
	data := defaultFlags
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read feature flags: %w", err)
		}
	}
	return Parse(data)
}

// Parse decodes and validates a YAML flag document. Unknown keys are
// rejected so a misspelled field cannot silently switch a flag off.
func Parse(data []byte) (*Set, error) {
	var file flagFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse feature flags: %w", err)
	}

	set := &Set{flags: make(map[string]Flag, len(file.Flags))}
	for i, f := range file.Flags {
		if f.Name == "" {
			return nil, fmt.Errorf("flag %d: name is required", i)
		}
		if _, dup := set.flags[f.Name]; dup {
			return nil, fmt.Errorf("flag %q: defined more than once", f.Name)
		}
		if f.RolloutPercentage < 0 || f.RolloutPercentage > 100 {
			return nil, fmt.Errorf("flag %q: rollout_percentage must be between 0 and 100, got %d", f.Name, f.RolloutPercentage)
		}
		for _, r := range f.Roles {
			if !r.Valid() {
				return nil, fmt.Errorf("flag %q: unknown role %q", f.Name, r)
			}
		}
		set.flags[f.Name] = f
	}
	return set, nil
}

// Names returns flag names in sorted order
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.flags))
	for name := range s.flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsEnabled reports whether name is on for the given user and role.
// Unknown flags are off.
func (s *Set) IsEnabled(name, userID string, role models.Role) bool {
	f, ok := s.flags[name]
	if !ok {
		return false
	}
	return f.enabledFor(userID, role)
}

// Evaluate returns every flag's value for the given user and role
func (s *Set) Evaluate(userID string, role models.Role) map[string]bool {
	out := make(map[string]bool, len(s.flags))
	for name, f := range s.flags {
		out[name] = f.enabledFor(userID, role)
	}
	return out
}

func (f Flag) enabledFor(userID string, role models.Role) bool {
	if !f.Enabled {
		return false
	}
	if len(f.Roles) > 0 && !f.allows(role) {
		return false
	}
	return Bucket(f.Name, userID) < f.RolloutPercentage
}

func (f Flag) allows(role models.Role) bool {
	for _, r := range f.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Bucket maps a flag and user onto [0, 100)
func Bucket(flag, userID string) int {
	return int(xxhash.Sum64String(flag+":"+userID) % 100)
}
