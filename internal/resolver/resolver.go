// Package resolver implements the Model Resolver: mapping a caller-supplied
// model identifier to an internal upstream model id via prioritized
// pattern rules (exact, regex, contains).
package resolver

import (
	"regexp"
	"strings"
	"sync"

	"github.com/martinfeng/kiro-relay/internal/relayerr"
)

type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchRegex    MatchType = "regex"
	MatchContains MatchType = "contains"
)

// Mapping is one rule in the resolver's table.
type Mapping struct {
	ExternalPattern string
	InternalID      string
	MatchType       MatchType
	Priority        int
	Enabled         bool

	compiled *regexp.Regexp // compiled by Reload for MatchRegex
}

// Resolver evaluates enabled mappings in descending priority, ties broken
// by rule-set order. The mapping table is reloaded atomically on change;
// callers take a snapshot at request entry via Snapshot.
type Resolver struct {
	mu       sync.RWMutex
	mappings []Mapping
}

func New(mappings []Mapping) (*Resolver, error) {
	r := &Resolver{}
	if err := r.Reload(mappings); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload atomically replaces the mapping table, compiling any regex rules
// up front so Resolve never pays compilation cost nor fails at call time.
func (r *Resolver) Reload(mappings []Mapping) error {
	compiled := make([]Mapping, len(mappings))
	for i, m := range mappings {
		if m.MatchType == MatchRegex {
			re, err := regexp.Compile("^(?:" + m.ExternalPattern + ")$")
			if err != nil {
				return err
			}
			m.compiled = re
		}
		compiled[i] = m
	}
	// Stable-sort by descending priority, preserving rule-set order for ties.
	for i := 1; i < len(compiled); i++ {
		for j := i; j > 0 && compiled[j].Priority > compiled[j-1].Priority; j-- {
			compiled[j], compiled[j-1] = compiled[j-1], compiled[j]
		}
	}

	r.mu.Lock()
	r.mappings = compiled
	r.mu.Unlock()
	return nil
}

// Snapshot returns the current mapping table for a request handler to use
// for the duration of one request, immune to a concurrent Reload.
func (r *Resolver) Snapshot() []Mapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Mapping, len(r.mappings))
	copy(out, r.mappings)
	return out
}

// Resolve evaluates the given snapshot against input, returning the first
// matching rule's InternalID. Substring rules are intentionally the
// low-priority default so explicit versioned names take precedence over a
// generic family bucket.
func Resolve(mappings []Mapping, input string) (string, error) {
	lowered := strings.ToLower(input)
	for _, m := range mappings {
		if !m.Enabled {
			continue
		}
		switch m.MatchType {
		case MatchExact:
			if m.ExternalPattern == input {
				return m.InternalID, nil
			}
		case MatchRegex:
			if m.compiled != nil && m.compiled.MatchString(input) {
				return m.InternalID, nil
			}
		case MatchContains:
			if strings.Contains(lowered, strings.ToLower(m.ExternalPattern)) {
				return m.InternalID, nil
			}
		}
	}
	return "", relayerr.New(relayerr.KindUnsupportedModel, "no mapping resolves model "+input)
}

// ResolveWith is a convenience that resolves against the resolver's
// current snapshot in one call.
func (r *Resolver) ResolveWith(input string) (string, error) {
	return Resolve(r.Snapshot(), input)
}
