package strategies

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

func echoBackend(name reasoning.StrategyName) Backend {
	return BackendFunc(func(ctx context.Context, sessionID, prompt string, bc BackendContext) (*reasoning.Result, error) {
		return &reasoning.Result{Type: name, PrimaryResponse: prompt, Confidence: 0.5}, nil
	})
}

func TestDefaultRegistryFollowsCatalog(t *testing.T) {
	r, err := NewDefaultRegistry(echoBackend)
	require.NoError(t, err)

	names := r.Names()
	assert.Equal(t, []reasoning.StrategyName{
		reasoning.StrategyBasic,
		reasoning.StrategyChainOfDraft,
		reasoning.StrategyReAct,
		reasoning.StrategyCouncilOfCritics,
		reasoning.StrategyTreeOfThoughts,
		reasoning.StrategyMetaCognitive,
	}, names)

	assert.Equal(t, 5, r.Strength(reasoning.StrategyMetaCognitive))
	assert.Equal(t, -1, r.Strength("unknown"))

	deps := r.Dependencies()
	assert.Equal(t, []reasoning.StrategyName{reasoning.StrategyCouncilOfCritics}, deps[reasoning.StrategyMetaCognitive])
	assert.Len(t, deps, 1)
}

func TestRegisterValidates(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Register(Registration{Backend: echoBackend("x")}), ErrEmptyName)
	assert.ErrorIs(t, r.Register(Registration{Name: "x"}), ErrNilBackend)

	_, err := r.Backend("x")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestAddingStrategyIsATableEntry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Registration{Name: "socratic", Strength: 2, Backend: echoBackend("socratic")}))

	b, err := r.Backend("socratic")
	require.NoError(t, err)
	res, err := b.GenerateResponse(context.Background(), "s1", "why?", BackendContext{})
	require.NoError(t, err)
	assert.Equal(t, reasoning.StrategyName("socratic"), res.Type)
	assert.Equal(t, "why?", res.PrimaryResponse)
}

func TestBackendErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := error(&BackendError{Strategy: reasoning.StrategyReAct, Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "react")

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, reasoning.StrategyReAct, be.Strategy)
}
