package relay

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"xswap/pkg/attest"
	"xswap/pkg/chain"
	"xswap/pkg/metrics"
	"xswap/pkg/registry"
	"xswap/pkg/types"
)

const scanPage = 256

// AttestorConfig configures an Attestor
type AttestorConfig struct {
	Chains         Chains
	Journal        *Journal
	Signers        []*attest.Signer
	GasFeeReceiver common.Address // receives the gas fee withheld from refunds
	Expiry         time.Duration  // zero disables refunds
	BatchSize      int            // claims per batchClaim, 1 or less claims one by one
	MaxAttempts    int
	Clock          func() time.Time
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
}

// Attestor signs for the validator quorum. It claims requests closed on
// their target chain and refunds requests left open past the expiry.
type Attestor struct {
	chains         Chains
	journal        *Journal
	signers        []*attest.Signer
	gasFeeReceiver common.Address
	expiry         time.Duration
	batchSize      int
	maxAttempts    int
	clock          func() time.Time
	metrics        *metrics.Metrics
	log            *zap.Logger
	kick           chan struct{}
	cursor         map[uint64]uint64 // first swap id per chain that may still be open
}

// NewAttestor creates an attestor
func NewAttestor(cfg AttestorConfig) *Attestor {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Attestor{
		chains:         cfg.Chains,
		journal:        cfg.Journal,
		signers:        cfg.Signers,
		gasFeeReceiver: cfg.GasFeeReceiver,
		expiry:         cfg.Expiry,
		batchSize:      cfg.BatchSize,
		maxAttempts:    maxAttempts,
		clock:          clock,
		metrics:        cfg.Metrics,
		log:            log.Named("attestor"),
		kick:           make(chan struct{}, 1),
		cursor:         make(map[uint64]uint64),
	}
}

// Subscribe starts recording a claim job for every fulfilled close
func (a *Attestor) Subscribe() error {
	for _, id := range a.chains.IDs() {
		if err := a.chains[id].Bus().Subscribe(types.TopicSwapClosed, a.onSwapClosed); err != nil {
			return fmt.Errorf("failed to subscribe to chain %d: %w", id, err)
		}
	}
	return nil
}

func (a *Attestor) onSwapClosed(ev types.SwapClosedEvent) {
	if ev.Outcome == types.OutcomeLocked {
		return
	}
	a.queueClaim(ev.FromChainID, ev.ChainID, ev.FromSwapID)
}

func (a *Attestor) queueClaim(source, target, swapID uint64) {
	job, added, err := a.journal.Add(JobClaim, source, target, swapID)
	if err != nil {
		a.log.Error("failed to record claim job", zap.Uint64("source", source), zap.Uint64("swap_id", swapID), zap.Error(err))
		return
	}
	if added {
		a.log.Debug("claim job queued", zap.String("job", job.ID), zap.Uint64("source", source), zap.Uint64("swap_id", swapID))
		notify(a.kick)
	}
}

// Run polls until ctx is done
func (a *Attestor) Run(ctx context.Context, interval time.Duration) error {
	a.log.Info("attestor started",
		zap.Int("signers", len(a.signers)),
		zap.Int("batch_size", a.batchSize),
		zap.Duration("expiry", a.expiry))
	defer a.log.Info("attestor stopped")
	return run(ctx, interval, a.kick, a.Poll)
}

// Poll scans for expired requests, then attempts every pending claim and
// expiry job once
func (a *Attestor) Poll(ctx context.Context) {
	if a.expiry > 0 {
		for _, id := range a.chains.IDs() {
			if err := a.scanExpired(a.chains[id]); err != nil {
				a.log.Warn("expiry scan failed", zap.Uint64("chain", id), zap.Error(err))
			}
		}
	}
	if ctx.Err() != nil {
		return
	}
	a.processClaims()
	a.processExpired()
}

// scanExpired queues an expiry job for each request open longer than the
// expiry. Requests are recorded in time order, so the scan stops at the
// first one that has not expired.
func (a *Attestor) scanExpired(src *chain.Chain) error {
	reqs, err := src.Registry().Swaps(a.cursor[src.ID()], scanPage)
	if err != nil {
		return err
	}

	deadline := a.clock().Add(-a.expiry)
	advance := true
	for _, req := range reqs {
		if !req.IsOpen() {
			if advance {
				a.cursor[src.ID()] = req.SwapID + 1
			}
			continue
		}
		advance = false

		if time.Unix(int64(req.RequestedAt), 0).After(deadline) {
			break
		}
		job, added, err := a.journal.Add(JobExpire, src.ID(), req.ToChainID, req.SwapID)
		if err != nil {
			return err
		}
		if added {
			a.log.Info("swap request expired", zap.String("job", job.ID), zap.Uint64("source", src.ID()), zap.Uint64("swap_id", req.SwapID))
		}
	}
	return nil
}

type claimGroup struct {
	source    uint64
	poolAsset common.Address
	jobs      []Job
}

func (a *Attestor) processClaims() {
	groups := make(map[string]*claimGroup)
	order := make([]string, 0)

	for _, job := range a.journal.Pending(JobClaim) {
		src, err := a.chains.Get(job.SourceChain)
		if err != nil {
			a.settle(job, "", err)
			continue
		}
		req, err := src.Registry().GetSwap(job.SwapID)
		if err != nil {
			a.settle(job, "", err)
			continue
		}
		if !req.IsOpen() {
			a.settle(job, "already closed", nil)
			continue
		}

		key := fmt.Sprintf("%d/%s", job.SourceChain, req.PoolAsset.Hex())
		g, ok := groups[key]
		if !ok {
			g = &claimGroup{source: job.SourceChain, poolAsset: req.PoolAsset}
			groups[key] = g
			order = append(order, key)
		}
		g.jobs = append(g.jobs, job)
	}

	for _, key := range order {
		g := groups[key]
		size := a.batchSize
		if size <= 1 {
			size = 1
		}
		for start := 0; start < len(g.jobs); start += size {
			end := start + size
			if end > len(g.jobs) {
				end = len(g.jobs)
			}
			chunk := g.jobs[start:end]
			if len(chunk) == 1 {
				a.claim(chunk[0])
				continue
			}
			a.batchClaim(g, chunk)
		}
	}
}

func (a *Attestor) claim(job Job) {
	src := a.chains[job.SourceChain]
	err := src.Execute(func(r *registry.Registry) error {
		sigs, err := a.sign(attest.ClaimHash(r.Address(), r.QuorumAddress(), r.ChainID(), job.SwapID))
		if err != nil {
			return err
		}
		_, err = r.Claim(job.SwapID, sigs)
		return err
	})
	if isSettled(err) {
		a.settle(job, "already closed", nil)
		return
	}
	if err == nil {
		a.log.Info("swap claimed", zap.Uint64("source", job.SourceChain), zap.Uint64("swap_id", job.SwapID))
	}
	a.settle(job, "claimed", err)
}

// batchClaim claims a chunk in one call. If the batch is rejected each
// request is claimed on its own so one bad id cannot hold up the others.
func (a *Attestor) batchClaim(g *claimGroup, chunk []Job) {
	ids := make([]uint64, len(chunk))
	for i, job := range chunk {
		ids[i] = job.SwapID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	src := a.chains[g.source]
	err := src.Execute(func(r *registry.Registry) error {
		sigs, err := a.sign(attest.BatchClaimHash(r.Address(), r.QuorumAddress(), r.ChainID(), g.poolAsset, ids))
		if err != nil {
			return err
		}
		_, err = r.BatchClaim(ids, g.poolAsset, sigs)
		return err
	})
	if err != nil {
		a.log.Warn("batch claim rejected, claiming one by one",
			zap.Uint64("source", g.source), zap.Int("swaps", len(ids)), zap.Error(err))
		for _, job := range chunk {
			a.claim(job)
		}
		return
	}

	a.log.Info("batch claimed", zap.Uint64("source", g.source), zap.String("asset", g.poolAsset.Hex()), zap.Int("swaps", len(ids)))
	for _, job := range chunk {
		a.settle(job, "batch claimed", nil)
	}
}

func (a *Attestor) processExpired() {
	for _, job := range a.journal.Pending(JobExpire) {
		result, err := a.expire(job)
		if err != nil {
			a.log.Warn("expiry attempt failed",
				zap.String("job", job.ID),
				zap.Uint64("source", job.SourceChain),
				zap.Uint64("swap_id", job.SwapID),
				zap.Error(err))
		}
		a.settle(job, result, err)
	}
}

// expire locks the request's id on the target chain so it can never be
// fulfilled there, then refunds it on the source chain. A request that was
// fulfilled after all is claimed instead.
func (a *Attestor) expire(job Job) (string, error) {
	src, err := a.chains.Get(job.SourceChain)
	if err != nil {
		return "", err
	}
	dst, err := a.chains.Get(job.TargetChain)
	if err != nil {
		return "", err
	}

	req, err := src.Registry().GetSwap(job.SwapID)
	if err != nil {
		return "", err
	}
	if !req.IsOpen() {
		return "already closed", nil
	}

	rec, err := dst.Registry().GetCloseRecord(job.SourceChain, job.SwapID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		err = dst.Execute(func(r *registry.Registry) error {
			sigs, err := a.sign(attest.LockCloseHash(r.Address(), r.QuorumAddress(), r.ChainID(), job.SourceChain, job.SwapID))
			if err != nil {
				return err
			}
			rec, err = r.LockCloseSwap(job.SourceChain, job.SwapID, sigs)
			return err
		})
		if isSettled(err) {
			// closed on the target since the lookup
			if rec, err = dst.Registry().GetCloseRecord(job.SourceChain, job.SwapID); err != nil {
				return "", err
			}
		} else if err != nil {
			return "", fmt.Errorf("lock on target: %w", err)
		}
	}
	if rec.Outcome != types.OutcomeLocked {
		a.queueClaim(job.SourceChain, job.TargetChain, job.SwapID)
		return "fulfilled", nil
	}

	var ev *types.SwapRefundedEvent
	err = src.Execute(func(r *registry.Registry) error {
		sigs, err := a.sign(attest.RefundHash(r.Address(), r.QuorumAddress(), r.ChainID(), job.SwapID, a.gasFeeReceiver))
		if err != nil {
			return err
		}
		ev, err = r.Refund(job.SwapID, a.gasFeeReceiver, sigs)
		return err
	})
	if isSettled(err) {
		return "already closed", nil
	}
	if err != nil {
		return "", fmt.Errorf("refund on source: %w", err)
	}

	a.log.Info("swap refunded",
		zap.Uint64("source", job.SourceChain),
		zap.Uint64("swap_id", job.SwapID),
		zap.Stringer("amount", ev.Amount),
		zap.Stringer("gas_fee", ev.GasFee))
	return "refunded", nil
}

func (a *Attestor) sign(hash common.Hash) ([][]byte, error) {
	return attest.SignAll(hash, a.signers...)
}

func (a *Attestor) settle(job Job, result string, err error) {
	if err := finish(a.journal, a.metrics, job, result, err, a.maxAttempts); err != nil {
		a.log.Error("failed to update job", zap.String("job", job.ID), zap.Error(err))
	}
}
