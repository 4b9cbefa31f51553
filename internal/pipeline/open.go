package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/PitchRadar/internal/config"
	"github.com/TobiSchelling/PitchRadar/internal/metrics"
	"github.com/TobiSchelling/PitchRadar/internal/search"
	"github.com/TobiSchelling/PitchRadar/internal/storage"
)

// DatabaseFile is the sqlite file in the data directory.
const DatabaseFile = "pitchradar.db"

// Open wires the production collaborators described by cfg. The returned
// function releases the stores.
func Open(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, m *metrics.Metrics) (*Pipeline, func() error, error) {
	cache := search.NewCache(ctx, cfg.Cache, log)
	news := search.NewNewsSearcher(cfg.Search.News, cache, log)
	research := search.NewMarketResearcher(ctx, cfg.Search.Market, cache, log)

	runs, err := storage.OpenSQLite(filepath.Join(cfg.GetDataDir(), DatabaseFile))
	if err != nil {
		return nil, nil, fmt.Errorf("opening run store: %w", err)
	}
	gcs := storage.NewGCSStore()

	mux := storage.NewMux()
	mux.Handle("file", storage.NewFileStore(cfg.GetFileRoot()))
	mux.Handle("gs", gcs)
	mux.Handle("sqlite", runs)

	p := New(ctx, cfg, Deps{
		News:     news,
		Research: research,
		Store:    mux,
		Runs:     runs,
		Metrics:  m,
		Logger:   log,
	})

	closeFn := func() error {
		return errors.Join(runs.Close(), gcs.Close())
	}
	return p, closeFn, nil
}
