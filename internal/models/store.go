// Filename: models/store.go
package models

import (
	"fmt"
	"sort"
	"strings"
)

// matcher is one compiled MethodMatcherKey: the owner/name/signature facts
// shared by every row that folded into the key.
type matcher struct {
	owner          string
	name           string
	signature      string
	matchOverrides bool
	rows           []ExternalModel
}

// Store is the immutable method-flow index. Built once before analysis
// starts, then shared read-only across concurrent scope analyses.
type Store struct {
	matchers map[MethodMatcherKey]*matcher
	// byName buckets matchers by method name (or the constructor marker) so
	// a lookup only scans rows that could possibly apply.
	byName map[string][]*matcher
	count  int
}

// NewStore indexes a set of rows. Later rows with the same matcher identity
// append to the earlier ones, so callers can layer a user table over the
// shipped defaults.
func NewStore(rows []ExternalModel) *Store {
	s := &Store{
		matchers: make(map[MethodMatcherKey]*matcher),
		byName:   make(map[string][]*matcher),
	}
	for _, row := range rows {
		key := row.MatcherKey()
		m, ok := s.matchers[key]
		if !ok {
			m = &matcher{
				owner:          row.FullyQualifiedType(),
				name:           row.MatcherName(),
				signature:      row.Signature,
				matchOverrides: key.MatchOverrides,
			}
			s.matchers[key] = m
			s.byName[m.name] = append(s.byName[m.name], m)
		}
		m.rows = append(m.rows, row)
		s.count++
	}
	return s
}

// NewDefaultStore builds a store from the embedded table plus any extra
// table files, layered in order.
func NewDefaultStore(extraPaths ...string) (*Store, error) {
	rows, err := DefaultRows()
	if err != nil {
		return nil, fmt.Errorf("embedded model table: %w", err)
	}
	for _, path := range extraPaths {
		extra, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		rows = append(rows, extra...)
	}
	return NewStore(rows), nil
}

// Len returns the number of indexed rows.
func (s *Store) Len() int { return s.count }

// Rows returns every indexed row, ordered by matcher signature, for
// inspection commands.
func (s *Store) Rows() []ExternalModel {
	keys := make([]MethodMatcherKey, 0, len(s.matchers))
	for key := range s.matchers {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Signature < keys[j].Signature })

	out := make([]ExternalModel, 0, s.count)
	for _, key := range keys {
		out = append(out, s.matchers[key].rows...)
	}
	return out
}

// Lookup returns every row matching a call site. owner is the call's fully
// qualified target type ("" when unresolvable), name the invoked method
// (ConstructorName for constructor calls), argTypes the call's parameter
// types with "" for positions the caller could not resolve. assignable
// answers "is the call's owner assignable to this row owner" and is only
// consulted for rows with the subtypes flag set.
func (s *Store) Lookup(owner, name string, argTypes []string, assignable func(rowOwner string) bool) []ExternalModel {
	if owner == "" {
		return nil
	}
	var out []ExternalModel
	for _, m := range s.byName[name] {
		if m.owner != owner {
			if !m.matchOverrides || assignable == nil || !assignable(m.owner) {
				continue
			}
		}
		if !signatureMatches(m.signature, argTypes) {
			continue
		}
		out = append(out, m.rows...)
	}
	return out
}

// signatureMatches compares a row signature against the call's parameter
// types. An empty signature matches any parameter list; "()" matches only
// zero-argument calls; anything else is compared structurally after generic
// erasure, with unresolved call-side types acting as wildcards.
func signatureMatches(signature string, argTypes []string) bool {
	if signature == "" {
		return true
	}
	if signature == "()" {
		return len(argTypes) == 0
	}

	inner := strings.TrimSuffix(strings.TrimPrefix(signature, "("), ")")
	if inner == "" {
		return len(argTypes) == 0
	}
	want := strings.Split(inner, ",")
	if len(want) != len(argTypes) {
		return false
	}
	for i, w := range want {
		w = eraseGenerics(strings.TrimSpace(w))
		got := eraseGenerics(strings.TrimSpace(argTypes[i]))
		if got == "" || w == got {
			continue
		}
		// A row may name the bare type where the call resolved the full
		// package, or vice versa.
		if strings.HasSuffix(got, "."+w) || strings.HasSuffix(w, "."+got) {
			continue
		}
		return false
	}
	return true
}

func eraseGenerics(t string) string {
	if idx := strings.IndexByte(t, '<'); idx >= 0 {
		return t[:idx]
	}
	return t
}
