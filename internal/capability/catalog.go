// Package capability defines the closed catalog of bot capabilities and the
// set type used throughout policy resolution.
package capability

import (
	"encoding/json"
	"sort"
	"strings"
)

// Capability names one gated bot action.
type Capability string

const (
	// UseBot gates ordinary conversational use of the bot.
	UseBot Capability = "use-bot"
	// RunAnalysis gates full channel analysis runs.
	RunAnalysis Capability = "run-analysis"
	// QuickAnalyze gates the short-window analysis command.
	QuickAnalyze Capability = "quick-analyze"
	// Consult gates the advisory/consultation command.
	Consult Capability = "consult"
	// ManageConfig gates tenant configuration changes.
	ManageConfig Capability = "manage-config"
	// ManagePermissions gates policy administration.
	ManagePermissions Capability = "manage-permissions"
	// ViewHelp gates the help command and is the default grant.
	ViewHelp Capability = "view-help"
)

// catalog is the process-wide constant set of known capabilities.
var catalog = map[Capability]struct{}{
	UseBot:            {},
	RunAnalysis:       {},
	QuickAnalyze:      {},
	Consult:           {},
	ManageConfig:      {},
	ManagePermissions: {},
	ViewHelp:          {},
}

// Known reports whether c is part of the catalog.
func Known(c Capability) bool {
	_, ok := catalog[c]
	return ok
}

// All returns every catalog capability in sorted order.
func All() []Capability {
	out := make([]Capability, 0, len(catalog))
	for c := range catalog {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FullSet returns a Set holding the entire catalog.
func FullSet() Set {
	s := NewSet()
	for c := range catalog {
		s.Add(c)
	}
	return s
}

// AdminOnlyDefaults returns the capabilities reserved for admins on a fresh
// tenant. Stored per tenant; callers must not assume it stays this value.
func AdminOnlyDefaults() Set {
	return NewSet(ManageConfig, ManagePermissions)
}

// Defaults returns the capability set granted to every actor on a fresh
// tenant.
func Defaults() Set {
	return NewSet(ViewHelp)
}

// Set is an unordered collection of capabilities. The zero value is not
// usable; construct with NewSet.
type Set map[Capability]struct{}

// NewSet builds a Set from the given capabilities.
func NewSet(caps ...Capability) Set {
	s := make(Set, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// ParseSet converts raw names into a Set, silently dropping anything not in
// the catalog. The dropped names are returned so callers can log them.
func ParseSet(names []string) (Set, []string) {
	s := make(Set, len(names))
	var dropped []string
	for _, raw := range names {
		name := Capability(strings.TrimSpace(strings.ToLower(raw)))
		if name == "" {
			continue
		}
		if !Known(name) {
			dropped = append(dropped, string(name))
			continue
		}
		s[name] = struct{}{}
	}
	return s, dropped
}

// Add inserts c into the set.
func (s Set) Add(c Capability) {
	s[c] = struct{}{}
}

// Has reports membership.
func (s Set) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Len returns the number of capabilities in the set.
func (s Set) Len() int { return len(s) }

// Union merges other into a fresh set, leaving both inputs untouched.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for c := range s {
		out[c] = struct{}{}
	}
	for c := range other {
		out[c] = struct{}{}
	}
	return out
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold exactly the same capabilities.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for c := range s {
		if _, ok := other[c]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the members as a sorted slice, used for stable
// serialization and display.
func (s Set) Sorted() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted members as plain strings.
func (s Set) Strings() []string {
	caps := s.Sorted()
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}

// MarshalJSON encodes the set as a sorted array of names.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes an array of names, dropping unknown entries the same
// way ParseSet does.
func (s *Set) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, _ := ParseSet(names)
	*s = parsed
	return nil
}
