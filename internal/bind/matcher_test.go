package bind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withID(b Bind, id string) Bind {
	b.ID = id
	return b
}

func TestFindExact(t *testing.T) {
	m := NewMatcher([]Bind{withID(New("TP", "", "tp", Command, "/tp {id}"), "1")}, true)

	b, method := m.Find("tp", true)
	require.NotNil(t, b)
	assert.Equal(t, "1", b.ID)
	assert.Equal(t, MethodExact, method)

	b, method = m.Find("TP", true)
	require.NotNil(t, b)
	assert.Equal(t, MethodExact, method)
}

func TestFindLayout(t *testing.T) {
	m := NewMatcher([]Bind{withID(New("TP", "", "tp", Command, "/tp {id}"), "1")}, true)

	b, method := m.Find("ез", true)
	require.NotNil(t, b)
	assert.Equal(t, "1", b.ID)
	assert.Equal(t, MethodLayout, method)

	b, method = m.Find("ЕЗ", true)
	require.NotNil(t, b)
	assert.Equal(t, MethodLayout, method)
}

func TestFindLayoutDisabled(t *testing.T) {
	m := NewMatcher([]Bind{New("TP", "", "tp", Command, "/tp")}, false)
	b, method := m.Find("ез", true)
	assert.Nil(t, b)
	assert.Equal(t, MethodNone, method)
}

func TestFindCaseSensitive(t *testing.T) {
	b := New("A", "", "Hi", Text, "x")
	b.Options.CaseSensitive = true
	m := NewMatcher([]Bind{b}, false)

	got, _ := m.Find("Hi", true)
	assert.NotNil(t, got)
	got, method := m.Find("hi", true)
	assert.Nil(t, got)
	assert.Equal(t, MethodNone, method)
}

func TestFindCaseInvariant(t *testing.T) {
	m := NewMatcher([]Bind{New("A", "", "Привет", Text, "x")}, false)
	for _, trig := range []string{"привет", "ПРИВЕТ", "пРиВеТ", "Привет"} {
		got, method := m.Find(trig, true)
		require.NotNil(t, got, trig)
		assert.Equal(t, MethodExact, method)
	}
}

func TestFindOnlyPrefix(t *testing.T) {
	onlyPrefix := withID(New("A", "", "tp", Text, "a"), "a")
	anywhere := withID(New("B", "", "tp", Text, "b"), "b")
	anywhere.Options.OnlyPrefix = false
	m := NewMatcher([]Bind{onlyPrefix, anywhere}, true)

	got, _ := m.Find("tp", true)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)

	got, _ = m.Find("tp", false)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.ID)

	m = NewMatcher([]Bind{onlyPrefix}, true)
	got, method := m.Find("tp", false)
	assert.Nil(t, got)
	assert.Equal(t, MethodNone, method)
}

func TestFindFirstInOrder(t *testing.T) {
	m := NewMatcher([]Bind{
		withID(New("1", "", "x", Text, ""), "first"),
		withID(New("2", "", "X", Text, ""), "second"),
	}, false)
	got, _ := m.Find("x", true)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.ID)
	assert.Equal(t, 2, m.Len())
}

func TestFindExactBeatsLayout(t *testing.T) {
	// "ез" converts to "tp"; an exact bind on "ез" must win over the layout
	// match against the earlier "tp" bind.
	m := NewMatcher([]Bind{
		withID(New("latin", "", "tp", Text, ""), "latin"),
		withID(New("cyr", "", "ез", Text, ""), "cyr"),
	}, true)
	got, method := m.Find("ез", true)
	require.NotNil(t, got)
	assert.Equal(t, "cyr", got.ID)
	assert.Equal(t, MethodExact, method)
}
