package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type labeled struct {
	id    string
	label string
}

func newLabeledSelection(items *[]labeled) *Selection[labeled] {
	return NewSelection(
		func() []labeled { return *items },
		func(l labeled) string { return l.id },
		func(l labeled) string { return l.label },
	)
}

func TestSelection_SelectKnownAndUnknown(t *testing.T) {
	items := []labeled{{"a", "Rapport annuel"}, {"b", "Compte rendu"}}
	sel := newLabeledSelection(&items)

	assert.True(t, sel.Select("b"))
	assert.Equal(t, "b", sel.ActiveID())

	// Unknown id is a no-op.
	assert.False(t, sel.Select("zzz"))
	assert.Equal(t, "b", sel.ActiveID())

	active, ok := sel.Active()
	require.True(t, ok)
	assert.Equal(t, "Compte rendu", active.label)
}

func TestSelection_SearchIsCaseInsensitiveSubstring(t *testing.T) {
	items := []labeled{
		{"a", "Meeting Notes"},
		{"b", "Budget 2026"},
		{"c", "meeting budget review"},
	}
	sel := newLabeledSelection(&items)

	sel.SetSearch("MEET")
	visible := sel.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, "a", visible[0].id)
	assert.Equal(t, "c", visible[1].id)

	sel.SetSearch("budget")
	visible = sel.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, "b", visible[0].id)
	assert.Equal(t, "c", visible[1].id)

	// Empty query shows everything.
	sel.SetSearch("")
	assert.Len(t, sel.Visible(), 3)

	// No match yields an empty, non-nil slice.
	sel.SetSearch("nothing matches this")
	assert.Empty(t, sel.Visible())
}

func TestSelection_SearchDoesNotAffectActive(t *testing.T) {
	items := []labeled{{"a", "alpha"}, {"b", "beta"}}
	sel := newLabeledSelection(&items)
	sel.Select("a")

	sel.SetSearch("beta")
	assert.Equal(t, "a", sel.ActiveID(), "filtering must not change the selection")
}

func TestSelection_ReconcileFallsBackToFirst(t *testing.T) {
	items := []labeled{{"a", "alpha"}, {"b", "beta"}, {"c", "gamma"}}
	sel := newLabeledSelection(&items)
	sel.Select("b")

	// Active item removed: fall back to the first remaining.
	items = []labeled{{"a", "alpha"}, {"c", "gamma"}}
	assert.Equal(t, "a", sel.Reconcile())
	assert.Equal(t, "a", sel.ActiveID())

	// Active item still present: keep it.
	sel.Select("c")
	assert.Equal(t, "c", sel.Reconcile())

	// Empty collection: no selection at all.
	items = nil
	assert.Equal(t, "", sel.Reconcile())
	_, ok := sel.Active()
	assert.False(t, ok)
}

func TestSelection_ReconcileKeepsNoSelection(t *testing.T) {
	items := []labeled{{"a", "alpha"}, {"b", "beta"}}
	sel := newLabeledSelection(&items)

	// Nothing was selected, so deleting an item must not promote one.
	items = []labeled{{"a", "alpha"}}
	assert.Equal(t, "", sel.Reconcile())
	_, ok := sel.Active()
	assert.False(t, ok)

	// Same after an explicit Clear.
	sel.Select("a")
	sel.Clear()
	assert.Equal(t, "", sel.Reconcile())
	assert.Equal(t, "", sel.ActiveID())
}
