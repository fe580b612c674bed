package filtering

import (
	"fmt"

	"github.com/MahdiGraph/SiteSniper/internal/compiler"
	"github.com/MahdiGraph/SiteSniper/internal/config"
	"github.com/MahdiGraph/SiteSniper/internal/models"
	"github.com/MahdiGraph/SiteSniper/internal/sink"
	"github.com/MahdiGraph/SiteSniper/pkg/logger"
)

// NewCompiler builds the rule compiler described by cfg. An extension path
// wins over the absolute block page URL.
func NewCompiler(cfg *config.Settings, log *logger.Logger) *compiler.Compiler {
	opts := compiler.Options{
		BlockAction:   models.ActionType(cfg.BlockAction),
		BlockPagePath: cfg.BlockPagePath,
		Logger:        log,
	}
	if opts.BlockPagePath == "" {
		opts.BlockPageURL = cfg.BlockPageURL
	}
	return compiler.New(opts)
}

// NewSink opens the directive sink described by cfg
func NewSink(cfg *config.Settings) (sink.Sink, error) {
	switch cfg.Sink.Type {
	case "", "file":
		return sink.NewFileSink(cfg.Sink.Path), nil
	case "memory":
		return sink.NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Sink.Type)
	}
}
