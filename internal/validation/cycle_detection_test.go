package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanWavesIndependentNodesShareAWave(t *testing.T) {
	res := PlanWaves([]Node{{ID: "react"}, {ID: "chain_of_draft"}})
	require.False(t, res.HasCycle)
	assert.Equal(t, [][]string{{"react", "chain_of_draft"}}, res.Waves)
}

func TestPlanWavesRespectsAfter(t *testing.T) {
	res := PlanWaves([]Node{
		{ID: "meta_cognitive", After: []string{"council_of_critics"}},
		{ID: "council_of_critics"},
		{ID: "tree_of_thoughts"},
	})
	require.False(t, res.HasCycle)
	assert.Equal(t, [][]string{
		{"council_of_critics", "tree_of_thoughts"},
		{"meta_cognitive"},
	}, res.Waves)
}

func TestPlanWavesIgnoresEdgesOutsidePlan(t *testing.T) {
	res := PlanWaves([]Node{
		{ID: "meta_cognitive", After: []string{"council_of_critics", "meta_cognitive"}},
	})
	require.False(t, res.HasCycle)
	assert.Equal(t, [][]string{{"meta_cognitive"}}, res.Waves)
}

func TestPlanWavesChain(t *testing.T) {
	res := PlanWaves([]Node{
		{ID: "C", After: []string{"B"}},
		{ID: "B", After: []string{"A"}},
		{ID: "A"},
	})
	require.False(t, res.HasCycle)
	assert.Equal(t, [][]string{{"A"}, {"B"}, {"C"}}, res.Waves)
}

func TestPlanWavesDetectsCycle(t *testing.T) {
	nodes := []Node{
		{ID: "A", After: []string{"C"}},
		{ID: "B", After: []string{"A"}},
		{ID: "C", After: []string{"B"}},
		{ID: "D"},
	}
	res := PlanWaves(nodes)
	require.True(t, res.HasCycle)
	assert.NotEmpty(t, res.ErrorMessage)
	assert.GreaterOrEqual(t, len(res.CyclePath), 4)
	assert.Equal(t, res.CyclePath[0], res.CyclePath[len(res.CyclePath)-1])
	assert.NotContains(t, res.CyclePath, "D")

	_, err := ValidatePlan(nodes)
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestPlanWavesEmpty(t *testing.T) {
	waves, err := ValidatePlan(nil)
	require.NoError(t, err)
	assert.Empty(t, waves)
}
