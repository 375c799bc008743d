// Filename: models/model.go
// Package models holds the declarative table of library method flow facts:
// which calls into un-analyzed code move data from their inputs to their
// outputs. The table is loaded once at startup into an immutable store and
// shared read-only by every analysis.
package models

import (
	"regexp"
	"strconv"
)

// ConstructorName is the reserved method-name marker constructor rows match
// under. A row whose type and name columns are equal describes a
// constructor.
const ConstructorName = "<constructor>"

// ReceiverArgument is the argument index convention for "the receiver": a
// row whose range starts at -1 includes the receiver among the flow inputs.
const ReceiverArgument = -1

// ArgumentRange identifies a contiguous span of positional arguments. Both
// bounds are inclusive; a single position has Start == End.
type ArgumentRange struct {
	Start int
	End   int
}

// Contains reports whether the argument position i falls in the range.
func (r ArgumentRange) Contains(i int) bool {
	return r.Start <= i && i <= r.End
}

// MethodMatcherKey identifies one compiled method matcher. Two keys are
// equal iff both fields match exactly.
type MethodMatcherKey struct {
	Signature      string
	MatchOverrides bool
}

// ExternalModel is one row of the table.
type ExternalModel struct {
	Namespace string
	Type      string
	Subtypes  bool
	Name      string
	Signature string
	Arguments string
}

// FullyQualifiedType returns the owning type, namespace.Type.
func (m ExternalModel) FullyQualifiedType() string {
	return m.Namespace + "." + m.Type
}

// IsConstructor reports whether the row describes a constructor: the type
// and name columns are equal.
func (m ExternalModel) IsConstructor() bool {
	return m.Type == m.Name
}

// MatcherName is the method name the row matches under: the name column, or
// ConstructorName for constructor rows.
func (m ExternalModel) MatcherName() string {
	if m.IsConstructor() {
		return ConstructorName
	}
	return m.Name
}

// MatcherKey folds the row into its matcher identity. An empty signature
// matches any parameter list and is keyed as "(..)".
func (m ExternalModel) MatcherKey() MethodMatcherKey {
	signature := m.Signature
	if signature == "" {
		signature = "(..)"
	}
	return MethodMatcherKey{
		Signature:      m.FullyQualifiedType() + " " + m.MatcherName() + signature,
		MatchOverrides: m.Subtypes,
	}
}

// ArgumentRange parses the row's arguments column. ok is false both for
// rows that deliberately carry no argument-flow fact and for malformed
// text; either way the row's identity facts stay usable.
func (m ExternalModel) ArgumentRange() (ArgumentRange, bool) {
	return parseArgumentRange(m.Arguments)
}

// argumentPattern accepts Argument[x] and Argument[x..y]; the start index
// may be negative (receiver convention), the end may not.
var argumentPattern = regexp.MustCompile(`^Argument\[(-?\d+)\.?\.?(\d+)?]$`)

func parseArgumentRange(arguments string) (ArgumentRange, bool) {
	groups := argumentPattern.FindStringSubmatch(arguments)
	if groups == nil {
		return ArgumentRange{}, false
	}
	start, err := strconv.Atoi(groups[1])
	if err != nil {
		return ArgumentRange{}, false
	}
	if groups[2] == "" {
		return ArgumentRange{Start: start, End: start}, true
	}
	end, err := strconv.Atoi(groups[2])
	if err != nil {
		return ArgumentRange{}, false
	}
	return ArgumentRange{Start: start, End: end}, true
}
