package cli

import (
	"github.com/Acribbs/ONT-VC/internal/config"
	"github.com/Acribbs/ONT-VC/internal/pipeline"
)

// loadGraph runs the construction path shared by run and plan:
// parameter file -> sample discovery -> dependency graph. Errors carry
// the exit code distinguishing configuration from topology problems.
func loadGraph(configPath string) (*config.Config, []config.Sample, *pipeline.Graph, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitConfigError, "invalid configuration", err)
	}

	samples, err := config.DiscoverSamples(cfg)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitConfigError, "sample discovery failed", err)
	}
	if len(samples) == 0 {
		return nil, nil, nil, NewExitError(ExitConfigError,
			"no read files found in data directory "+cfg.DataDir)
	}

	graph, err := pipeline.Build(cfg, samples)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitGraphError, "graph construction failed", err)
	}

	return cfg, samples, graph, nil
}
