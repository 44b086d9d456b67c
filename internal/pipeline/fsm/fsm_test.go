// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state string
type event string

func TestMachine(t *testing.T) {
	m, err := New[state, event]("idle", []Transition[state, event]{
		{From: "idle", Event: "start", To: "running"},
		{From: "running", Event: "stop", To: "idle"},
	})
	require.NoError(t, err)

	var seen []state
	m.OnChange(func(from, to state, _ event) { seen = append(seen, to) })

	assert.True(t, m.Can("start"))
	assert.False(t, m.Can("stop"))

	got, err := m.Fire("start")
	require.NoError(t, err)
	assert.Equal(t, state("running"), got)

	_, err = m.Fire("start")
	require.Error(t, err)
	assert.Equal(t, state("running"), m.State())

	_, err = m.Fire("stop")
	require.NoError(t, err)
	assert.Equal(t, []state{"running", "idle"}, seen)
}

func TestDuplicateTransitionRejected(t *testing.T) {
	_, err := New[state, event]("a", []Transition[state, event]{
		{From: "a", Event: "x", To: "b"},
		{From: "a", Event: "x", To: "c"},
	})
	require.Error(t, err)
}
