package filtering

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MahdiGraph/SiteSniper/internal/config"
	"github.com/MahdiGraph/SiteSniper/internal/models"
	"github.com/MahdiGraph/SiteSniper/internal/rules"
	"github.com/MahdiGraph/SiteSniper/internal/sink"
	"github.com/MahdiGraph/SiteSniper/pkg/logger"
)

func TestNewSinkFromSettings(t *testing.T) {
	cfg := config.DefaultSettings()
	cfg.Sink.Path = filepath.Join(t.TempDir(), "rules.json")

	s, err := NewSink(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if fs, ok := s.(*sink.FileSink); !ok || fs.Path() != cfg.Sink.Path {
		t.Fatalf("sink=%T", s)
	}

	cfg.Sink.Type = "memory"
	if s, err = NewSink(cfg); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*sink.MemorySink); !ok {
		t.Fatalf("sink=%T", s)
	}

	cfg.Sink.Type = "chrome"
	if _, err := NewSink(cfg); err == nil {
		t.Fatal("unknown sink type accepted")
	}
}

func TestNewCompilerBlockTarget(t *testing.T) {
	snap := rules.NewSnapshot([]models.Rule{{Site: "example.com", Kind: models.KindAlways}}, noon)

	cfg := config.DefaultSettings()
	ds := NewCompiler(cfg, logger.Discard()).Compile(snap, 720)
	if len(ds) != 1 || ds[0].Action.Redirect == nil || ds[0].Action.Redirect.ExtensionPath != cfg.BlockPagePath {
		t.Fatalf("directives=%+v", ds)
	}

	cfg.BlockPagePath = ""
	ds = NewCompiler(cfg, logger.Discard()).Compile(snap, 720)
	if ds[0].Action.Redirect == nil || ds[0].Action.Redirect.URL != cfg.BlockPageURL {
		t.Fatalf("directives=%+v", ds)
	}

	cfg.BlockAction = "block"
	ds = NewCompiler(cfg, logger.Discard()).Compile(snap, 720)
	if ds[0].Action.Type != models.ActionBlock {
		t.Fatalf("action=%+v", ds[0].Action)
	}

	// Compiled output must be installable as is
	if err := sink.NewMemorySink().Replace(context.Background(), nil, ds); err != nil {
		t.Fatal(err)
	}
}
