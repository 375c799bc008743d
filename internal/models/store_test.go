package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore([]ExternalModel{
		{Namespace: "java.lang", Type: "String", Name: "join", Arguments: "Argument[0..63]"},
		{Namespace: "java.io", Type: "InputStream", Subtypes: true, Name: "transferTo", Arguments: "Argument[-1..0]"},
		{Namespace: "com.example", Type: "Widget", Name: "copy",
			Signature: "(java.io.InputStream,java.io.OutputStream)", Arguments: "Argument[0..1]"},
		{Namespace: "com.example", Type: "Widget", Name: "reset", Signature: "()"},
		{Namespace: "java.net", Type: "URI", Name: "URI", Arguments: "Argument[0..63]"},
	})
}

func TestLookupExactOwner(t *testing.T) {
	s := testStore(t)

	rows := s.Lookup("java.lang.String", "join", []string{"", ""}, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, "join", rows[0].Name)

	assert.Empty(t, s.Lookup("java.lang.CharSequence", "join", nil, nil),
		"owner mismatch without a subtypes flag must not match")
	assert.Empty(t, s.Lookup("java.lang.String", "split", nil, nil))
	assert.Empty(t, s.Lookup("", "join", nil, nil), "unresolved owners never match")
}

func TestLookupSubtypes(t *testing.T) {
	s := testStore(t)
	assignable := func(rowOwner string) bool { return rowOwner == "java.io.InputStream" }

	rows := s.Lookup("java.io.FileInputStream", "transferTo", []string{""}, assignable)
	require.Len(t, rows, 1)

	r, ok := rows[0].ArgumentRange()
	require.True(t, ok)
	assert.Equal(t, ReceiverArgument, r.Start)

	assert.Empty(t, s.Lookup("java.io.FileInputStream", "transferTo", []string{""}, nil),
		"no assignability oracle, no supertype match")
}

func TestLookupConstructorRows(t *testing.T) {
	s := testStore(t)

	rows := s.Lookup("java.net.URI", ConstructorName, []string{""}, nil)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsConstructor())

	assert.Empty(t, s.Lookup("java.net.URI", "URI", []string{""}, nil),
		"constructor rows only match the constructor marker")
}

func TestLookupSignatureForms(t *testing.T) {
	s := testStore(t)

	// Empty signature: any parameter list.
	assert.Len(t, s.Lookup("java.lang.String", "join", []string{"", "", "", ""}, nil), 1)
	assert.Len(t, s.Lookup("java.lang.String", "join", nil, nil), 1)

	// "()": zero-argument calls only.
	assert.Len(t, s.Lookup("com.example.Widget", "reset", nil, nil), 1)
	assert.Empty(t, s.Lookup("com.example.Widget", "reset", []string{""}, nil))

	// Structural: count and types must line up, unknowns are wildcards.
	assert.Len(t, s.Lookup("com.example.Widget", "copy",
		[]string{"java.io.InputStream", "java.io.OutputStream"}, nil), 1)
	assert.Len(t, s.Lookup("com.example.Widget", "copy", []string{"", ""}, nil), 1)
	assert.Empty(t, s.Lookup("com.example.Widget", "copy", []string{""}, nil),
		"arity mismatch must not match")
	assert.Empty(t, s.Lookup("com.example.Widget", "copy",
		[]string{"java.lang.String", "java.io.OutputStream"}, nil),
		"resolved type mismatch must not match")
}

func TestStoreLayering(t *testing.T) {
	base := ExternalModel{Namespace: "java.lang", Type: "String", Name: "join", Arguments: "Argument[0..63]"}
	user := ExternalModel{Namespace: "java.lang", Type: "String", Name: "join", Arguments: "Argument[0]"}

	s := NewStore([]ExternalModel{base, user})
	assert.Equal(t, 2, s.Len())

	rows := s.Lookup("java.lang.String", "join", nil, nil)
	require.Len(t, rows, 2, "rows sharing a matcher key accumulate")
	assert.Equal(t, "Argument[0..63]", rows[0].Arguments)
	assert.Equal(t, "Argument[0]", rows[1].Arguments)
}

func TestNewDefaultStore(t *testing.T) {
	s, err := NewDefaultStore()
	require.NoError(t, err)
	assert.Greater(t, s.Len(), 10)

	rows := s.Lookup("java.lang.String", "join", []string{"", "", ""}, nil)
	assert.NotEmpty(t, rows, "the shipped table must model String.join")

	assert.Len(t, s.Rows(), s.Len())
}

func TestNewDefaultStoreMissingExtraFile(t *testing.T) {
	_, err := NewDefaultStore("does/not/exist.csv")
	assert.Error(t, err)
}
