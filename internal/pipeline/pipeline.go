// Package pipeline wires the consumer services onto a shared bus and store.
package pipeline

import (
	"log/slog"

	"github.com/alfredjeanlab/taskflow/internal/bus"
	"github.com/alfredjeanlab/taskflow/internal/extract"
	"github.com/alfredjeanlab/taskflow/internal/platform"
	"github.com/alfredjeanlab/taskflow/internal/store"
)

// Options selects which consumers a process runs. A single process can run
// both; separate deployments run one each against the same broker.
type Options struct {
	RunExtractor       bool
	RunPlatformManager bool

	Strategy extract.Strategy
	Sink     platform.Sink
}

// Pipeline holds the running consumer services.
type Pipeline struct {
	bus    bus.Bus
	logger *slog.Logger

	extractor *extract.Service
	manager   *platform.Service
}

// New builds a pipeline. Nothing consumes until Start.
func New(b bus.Bus, st store.Store, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{bus: b, logger: logger}
	if opts.RunExtractor {
		p.extractor = extract.NewService(b, st, opts.Strategy, logger)
	}
	if opts.RunPlatformManager {
		p.manager = platform.NewService(b, st, opts.Sink, logger)
	}
	return p
}

// Start subscribes the selected consumers.
func (p *Pipeline) Start() error {
	if p.extractor != nil {
		if err := p.extractor.Start(); err != nil {
			return err
		}
		p.logger.Info("extractor consuming", "group", extract.Group)
	}
	if p.manager != nil {
		if err := p.manager.Start(); err != nil {
			return err
		}
		p.logger.Info("platform manager consuming", "group", platform.Group)
	}
	return nil
}
