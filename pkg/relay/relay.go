// Package relay moves swap requests between chains. The Worker fulfils
// requests on their target chain; the Attestor plays the validator quorum,
// attesting fulfilment back to the source chain and refunding requests that
// expire unfulfilled.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"xswap/pkg/chain"
	"xswap/pkg/metrics"
	"xswap/pkg/types"
)

const (
	DefaultPollInterval = 2 * time.Second
	MinPollInterval     = 100 * time.Millisecond
	DefaultMaxAttempts  = 5
)

// ErrUnknownChain is returned for jobs that name a chain the relay does not serve
var ErrUnknownChain = errors.New("unknown chain")

// Chains is the set of chains a relay serves, by id
type Chains map[uint64]*chain.Chain

// IDs returns the chain ids in ascending order
func (c Chains) IDs() []uint64 {
	ids := make([]uint64, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Get returns the chain with id
func (c Chains) Get(id uint64) (*chain.Chain, error) {
	ch, ok := c[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, id)
	}
	return ch, nil
}

// run calls poll on every tick and every kick until ctx is done
func run(ctx context.Context, interval time.Duration, kick <-chan struct{}, poll func(context.Context)) error {
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-kick:
		}
		poll(ctx)
	}
}

func notify(kick chan struct{}) {
	select {
	case kick <- struct{}{}:
	default:
	}
}

// finish records an attempt. A job naming an unknown chain fails at once;
// other errors leave it pending until maxAttempts.
func finish(journal *Journal, m *metrics.Metrics, job Job, result string, err error, maxAttempts int) error {
	job.Attempts++
	switch {
	case err == nil:
		job.Status = JobDone
		job.Result = result
		job.LastError = ""
	case errors.Is(err, ErrUnknownChain), job.Attempts >= maxAttempts:
		job.Status = JobFailed
		job.LastError = err.Error()
	default:
		job.LastError = err.Error()
	}
	if job.Status != JobPending {
		m.RelayJob(string(job.Kind), string(job.Status))
	}
	return journal.Update(job)
}

// isSettled reports errors meaning someone already did the job's work
func isSettled(err error) bool {
	return errors.Is(err, types.ErrAlreadyClosed) || errors.Is(err, types.ErrSwapClosed)
}
