package track

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"poolScope/internal/model"
)

// SnapshotStore persists drained entity snapshots.
type SnapshotStore interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertSwaps(ctx context.Context, swaps []model.SwapRecord) error
	UpsertPriceSamples(ctx context.Context, samples []model.PriceSample) error
	UpsertDailyMetrics(ctx context.Context, metrics []model.DailyMetrics) error
	UpsertFactory(ctx context.Context, factory model.Factory) error
}

// SwapSink receives enriched swap records as they are produced.
type SwapSink interface {
	PutSwapBatch(swaps []model.SwapRecord) error
}

// Config controls feed processing.
type Config struct {
	BatchSize  int
	StateStore StateStore
}

// Processor drives the lifecycle controller over a JSONL event feed,
// flushing snapshots to the store in batches and checkpointing the last
// processed timestamp.
type Processor struct {
	cfg        Config
	controller *Controller
	store      SnapshotStore
	sink       SwapSink
	logger     *zap.Logger

	lastTs int64
}

func NewProcessor(cfg Config, controller *Controller, store SnapshotStore, sink SwapSink, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		cfg:        cfg,
		controller: controller,
		store:      store,
		sink:       sink,
		logger:     logger,
	}
}

// Run processes a decoded pool events JSONL file in order.
func (p *Processor) Run(ctx context.Context, inputPath string) error {
	if p.controller == nil {
		return fmt.Errorf("controller is nil")
	}
	if p.cfg.BatchSize <= 0 {
		p.cfg.BatchSize = 1000
	}

	startTs, err := p.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var total, applied, skipped, failed int
	var sinceFlush int

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.PoolEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			p.logger.Warn("decode pool event", zap.Error(err))
			continue
		}

		if record.Timestamp <= startTs {
			skipped++
			continue
		}

		if err := p.controller.Apply(ctx, record); err != nil {
			return fmt.Errorf("apply %s for pool %s: %w", record.EventName, record.PoolID, err)
		}
		applied++
		sinceFlush++
		if record.Timestamp > p.lastTs {
			p.lastTs = record.Timestamp
		}

		if sinceFlush >= p.cfg.BatchSize {
			if err := p.flush(ctx); err != nil {
				return err
			}
			sinceFlush = 0
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	if err := p.flush(ctx); err != nil {
		return err
	}

	p.logger.Info("track complete",
		zap.Int("total", total),
		zap.Int("applied", applied),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func (p *Processor) flush(ctx context.Context) error {
	snap := p.controller.Drain()

	if p.sink != nil && len(snap.Swaps) > 0 {
		if err := p.sink.PutSwapBatch(snap.Swaps); err != nil {
			return fmt.Errorf("swap sink: %w", err)
		}
	}

	if p.store != nil {
		if err := p.store.UpsertPools(ctx, snap.Pools); err != nil {
			return err
		}
		if err := p.store.UpsertSwaps(ctx, snap.Swaps); err != nil {
			return err
		}
		if err := p.store.UpsertPriceSamples(ctx, snap.Samples); err != nil {
			return err
		}
		if err := p.store.UpsertDailyMetrics(ctx, snap.Metrics); err != nil {
			return err
		}
		if err := p.store.UpsertFactory(ctx, *p.controller.Factory()); err != nil {
			return err
		}
	}

	if p.cfg.StateStore != nil && p.lastTs > 0 {
		if err := p.cfg.StateStore.Save(ctx, uint64(p.lastTs)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) loadStartTimestamp(ctx context.Context) (int64, error) {
	if p.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := p.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return int64(last), nil
}
