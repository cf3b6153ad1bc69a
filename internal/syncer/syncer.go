// Package syncer mirrors the reconciled catalog into PostgreSQL.
package syncer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/R3E-Network/property_registry/internal/metrics"
	"github.com/R3E-Network/property_registry/internal/source"
	"github.com/R3E-Network/property_registry/internal/storage/postgres"
	"github.com/R3E-Network/property_registry/pkg/logger"
)

// Source yields the current reconciliation result.
type Source interface {
	Get(ctx context.Context) source.Result
}

// BlockReader reports the chain head.
type BlockReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Store persists mirrored rows.
type Store interface {
	UpsertProperties(ctx context.Context, rows []postgres.MirroredProperty) error
}

// ImageVerifier reports whether url serves an image.
type ImageVerifier interface {
	Verify(ctx context.Context, url string) bool
}

// Report summarizes one mirror run.
type Report struct {
	RunID          string        `json:"run_id"`
	Source         source.Kind   `json:"source"`
	Block          uint64        `json:"block"`
	Synced         int           `json:"synced"`
	ImagesVerified int           `json:"images_verified"`
	Duration       time.Duration `json:"duration"`
}

// Syncer copies the current catalog into the store.
type Syncer struct {
	src    Source
	blocks BlockReader
	store  Store
	images ImageVerifier
	log    *logger.Logger
	now    func() time.Time

	// ImageConcurrency bounds parallel image checks.
	ImageConcurrency int
}

// New creates a Syncer. blocks and images may be nil.
func New(src Source, blocks BlockReader, store Store, images ImageVerifier, log *logger.Logger) *Syncer {
	if log == nil {
		log = logger.NewDefault("syncer")
	}
	return &Syncer{
		src:              src,
		blocks:           blocks,
		store:            store,
		images:           images,
		log:              log,
		now:              time.Now,
		ImageConcurrency: 4,
	}
}

// Run performs one mirror pass. An unavailable registry fails the run and
// leaves the mirror untouched.
func (s *Syncer) Run(ctx context.Context) (*Report, error) {
	start := s.now()
	report := &Report{RunID: uuid.NewString()}
	log := s.log.WithField("run_id", report.RunID)

	err := s.run(ctx, report)
	report.Duration = s.now().Sub(start)
	metrics.RecordSyncRun(report.Duration, err == nil)
	if err != nil {
		log.WithError(err).Warn("catalog mirror failed")
		return report, err
	}

	log.WithFields(map[string]interface{}{
		"source":          report.Source,
		"block":           report.Block,
		"synced":          report.Synced,
		"images_verified": report.ImagesVerified,
	}).Info("catalog mirrored")
	return report, nil
}

func (s *Syncer) run(ctx context.Context, report *Report) error {
	res := s.src.Get(ctx)
	report.Source = res.Source
	if res.Source == source.Errored {
		return fmt.Errorf("registry unavailable: %s", res.Error)
	}

	if s.blocks != nil && res.Source == source.OnChain {
		block, err := s.blocks.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("read block number: %w", err)
		}
		report.Block = block
	}

	syncedAt := s.now().UTC()
	rows := make([]postgres.MirroredProperty, len(res.Items))
	for i, p := range res.Items {
		row := postgres.FromProperty(p, string(res.Source))
		row.LastSyncedAt = syncedAt
		row.LastBlockSynced = int64(report.Block)
		rows[i] = row
	}

	report.ImagesVerified = s.verifyImages(ctx, rows, syncedAt)

	if err := s.store.UpsertProperties(ctx, rows); err != nil {
		return err
	}
	report.Synced = len(rows)
	return nil
}

func (s *Syncer) verifyImages(ctx context.Context, rows []postgres.MirroredProperty, at time.Time) int {
	if s.images == nil {
		return 0
	}
	verified := make([]bool, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	if s.ImageConcurrency > 0 {
		g.SetLimit(s.ImageConcurrency)
	}
	for i := range rows {
		url := rows[i].RenderURL
		if url == "" {
			url = rows[i].TokenizedURL
		}
		if url == "" {
			continue
		}
		i := i
		g.Go(func() error {
			verified[i] = s.images.Verify(gctx, url)
			return nil
		})
	}
	g.Wait() // workers record failures in verified and never return an error

	n := 0
	for i, ok := range verified {
		if ok {
			rows[i].ImageVerified = true
			rows[i].LastImageVerifiedAt = sql.NullTime{Time: at, Valid: true}
			n++
		}
	}
	return n
}
