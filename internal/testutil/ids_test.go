package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cascade/internal/engine"
)

func TestSeededGenerator_Reproducible(t *testing.T) {
	a := NewSeededGenerator("scenario")
	b := NewSeededGenerator("scenario")
	other := NewSeededGenerator("other")

	first := a.NewID()
	assert.Equal(t, first, b.NewID())
	assert.NotEqual(t, first, other.NewID())
	assert.NotEqual(t, first, a.NewID(), "successive ids differ")
	assert.Equal(t, NewSeededGenerator("").NewID(), NewSeededGenerator("default").NewID())
}

func TestNewEngine_Deterministic(t *testing.T) {
	e, rec := NewEngine(t)
	r := e.NewReactor(engine.WithName("solo"))
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Stop(context.Background()))

	events := rec.Kinds(engine.TraceTransition)
	require.Len(t, events, 4)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, r.ID().String(), ev.ReactorID)
	}
	assert.Equal(t, NewSeededGenerator(t.Name()).NewID(), r.ID())
}
