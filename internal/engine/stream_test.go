package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorLifecycle(t *testing.T) {
	var c Coordinator
	assert.Equal(t, StreamIdle, c.Phase())
	assert.False(t, c.Active())

	require.NoError(t, c.Begin("m1"))
	assert.Equal(t, StreamAwaitingFirstToken, c.Phase())
	assert.True(t, c.Active())

	text, first := c.Append("Hel")
	assert.True(t, first)
	assert.Equal(t, "Hel", text)
	assert.Equal(t, StreamStreaming, c.Phase())

	text, first = c.Append("lo")
	assert.False(t, first)
	assert.Equal(t, "Hello", text)

	final, model := c.Settle()
	assert.Equal(t, "Hello", final)
	assert.Equal(t, "m1", model)
	assert.Equal(t, StreamSettled, c.Phase())
	assert.False(t, c.Active())
}

func TestCoordinatorRejectsConcurrentBegin(t *testing.T) {
	var c Coordinator
	require.NoError(t, c.Begin("m1"))
	assert.ErrorIs(t, c.Begin("m2"), ErrStreamActive)

	c.Append("partial")
	assert.ErrorIs(t, c.Begin("m2"), ErrStreamActive)

	c.Settle()
	assert.NoError(t, c.Begin("m2"))
	assert.Equal(t, "", c.Text(), "a new stream starts from empty text")
}

func TestCoordinatorFail(t *testing.T) {
	var c Coordinator
	require.NoError(t, c.Begin("m1"))
	c.Append("some partial")

	boom := errors.New("boom")
	c.Fail(boom)
	assert.Equal(t, StreamFailed, c.Phase())
	assert.False(t, c.Active())
	assert.ErrorIs(t, c.Err(), boom)

	// Failed is terminal; a later stream starts clean.
	require.NoError(t, c.Begin("m1"))
	assert.NoError(t, c.Err())
	assert.Equal(t, "", c.Text())
}

func TestCoordinatorAppendWhenIdle(t *testing.T) {
	var c Coordinator
	text, first := c.Append("stray")
	assert.False(t, first)
	assert.Equal(t, "", text)
	assert.Equal(t, StreamIdle, c.Phase())
}
