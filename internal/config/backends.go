package config

import (
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/strategies"
)

// Registry builds the strategy registry: an HTTP backend for every strategy
// with a resolved URL, the local backend for the rest.
func (b BackendsConfig) Registry(logger *zap.Logger) (*strategies.Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	strength := make(map[reasoning.StrategyName]int)
	for _, reg := range strategies.Catalog() {
		strength[reg.Name] = reg.Strength
	}

	var remote, local []string
	reg, err := strategies.NewDefaultRegistry(func(name reasoning.StrategyName) strategies.Backend {
		if cfg, ok := b.For(name); ok {
			remote = append(remote, string(name))
			return strategies.NewHTTPBackend(name, cfg, logger.Named("backend"))
		}
		local = append(local, string(name))
		return strategies.NewLocalBackend(name, strength[name])
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Strategy backends configured", zap.Strings("remote", remote), zap.Strings("local", local))
	return reg, nil
}
