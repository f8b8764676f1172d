package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"xswap/pkg/metrics"
	"xswap/pkg/registry"
	"xswap/pkg/types"
)

// WorkerConfig configures a Worker
type WorkerConfig struct {
	Chains      Chains
	Journal     *Journal
	Account     common.Address // holds the worker role on every chain
	Adapter     common.Address // used when the destination asset differs from the pool asset
	MaxAttempts int
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Worker watches every chain for swap requests and closes them on their
// target chain
type Worker struct {
	chains      Chains
	journal     *Journal
	account     common.Address
	adapter     common.Address
	maxAttempts int
	metrics     *metrics.Metrics
	log         *zap.Logger
	kick        chan struct{}
}

// NewWorker creates a worker
func NewWorker(cfg WorkerConfig) *Worker {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Worker{
		chains:      cfg.Chains,
		journal:     cfg.Journal,
		account:     cfg.Account,
		adapter:     cfg.Adapter,
		maxAttempts: maxAttempts,
		metrics:     cfg.Metrics,
		log:         log.Named("worker"),
		kick:        make(chan struct{}, 1),
	}
}

// Subscribe starts recording a close job for every swap request
func (w *Worker) Subscribe() error {
	for _, id := range w.chains.IDs() {
		if err := w.chains[id].Bus().Subscribe(types.TopicSwapRequested, w.onSwapRequested); err != nil {
			return fmt.Errorf("failed to subscribe to chain %d: %w", id, err)
		}
	}
	return nil
}

func (w *Worker) onSwapRequested(ev types.SwapRequestedEvent) {
	job, added, err := w.journal.Add(JobClose, ev.ChainID, ev.Request.ToChainID, ev.Request.SwapID)
	if err != nil {
		w.log.Error("failed to record close job", zap.Uint64("swap_id", ev.Request.SwapID), zap.Error(err))
		return
	}
	if added {
		w.log.Debug("close job queued", zap.String("job", job.ID), zap.Uint64("source", ev.ChainID), zap.Uint64("swap_id", job.SwapID))
		notify(w.kick)
	}
}

// Run polls for pending jobs until ctx is done
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	w.log.Info("worker started", zap.String("account", w.account.Hex()), zap.Duration("interval", interval))
	defer w.log.Info("worker stopped")
	return run(ctx, interval, w.kick, w.Poll)
}

// Poll attempts every pending close job once
func (w *Worker) Poll(ctx context.Context) {
	for _, job := range w.journal.Pending(JobClose) {
		if ctx.Err() != nil {
			return
		}
		result, err := w.close(ctx, job)
		if err != nil {
			w.log.Warn("close attempt failed",
				zap.String("job", job.ID),
				zap.Uint64("source", job.SourceChain),
				zap.Uint64("swap_id", job.SwapID),
				zap.Int("attempt", job.Attempts+1),
				zap.Error(err))
		}
		if err := finish(w.journal, w.metrics, job, result, err, w.maxAttempts); err != nil {
			w.log.Error("failed to update job", zap.String("job", job.ID), zap.Error(err))
		}
	}
}

// close fulfils the job's request on its target chain
func (w *Worker) close(ctx context.Context, job Job) (string, error) {
	src, err := w.chains.Get(job.SourceChain)
	if err != nil {
		return "", err
	}
	dst, err := w.chains.Get(job.TargetChain)
	if err != nil {
		return "", err
	}

	req, err := src.Registry().GetSwap(job.SwapID)
	if err != nil {
		return "", err
	}
	if !req.IsOpen() {
		return "source closed", nil
	}

	// The pool asset has the same identity on every chain
	desc := types.SwapDescription{
		SrcAsset:        req.PoolAsset,
		DstAsset:        req.DstAsset,
		Receiver:        req.Receiver,
		Amount:          req.NetAmount(),
		MinReturnAmount: req.MinReturnAmount,
	}
	adapter := w.adapter
	if desc.DstAsset == desc.SrcAsset {
		adapter = common.Address{}
	}

	var rec *types.CloseRecord
	err = dst.Execute(func(r *registry.Registry) error {
		var err error
		rec, err = r.CloseSwap(ctx, registry.Call{Caller: w.account}, adapter, desc, job.SourceChain, job.SwapID)
		return err
	})
	if isSettled(err) {
		return "already closed", nil
	}
	if err != nil {
		return "", err
	}

	w.log.Info("swap closed on target",
		zap.Uint64("source", job.SourceChain),
		zap.Uint64("target", job.TargetChain),
		zap.Uint64("swap_id", job.SwapID),
		zap.Stringer("outcome", rec.Outcome),
		zap.Stringer("amount_out", rec.AmountOut))
	return rec.Outcome.String(), nil
}
