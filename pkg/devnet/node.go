// Package devnet runs a set of simulated chains together with the relay
// worker, the attestor and the JSON-RPC and metrics endpoints.
package devnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xswap/config"
	"xswap/pkg/api"
	"xswap/pkg/attest"
	"xswap/pkg/chain"
	"xswap/pkg/client"
	"xswap/pkg/exchange"
	"xswap/pkg/metrics"
	"xswap/pkg/relay"
)

const shutdownTimeout = 5 * time.Second

// Node owns the chains and services of a devnet
type Node struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	chains   relay.Chains
	journal  *relay.Journal
	worker   *relay.Worker
	attestor *relay.Attestor

	mu       sync.Mutex
	running  bool
	closed   bool
	cancel   context.CancelFunc
	group    *errgroup.Group
	servers  []*http.Server
	rpcAddr  string
	promAddr string
}

// New opens and bootstraps every configured chain and wires the relay
func New(cfg *config.Config, log *zap.Logger) (*Node, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(cfg.Chains) == 0 {
		return nil, fmt.Errorf("no chains configured")
	}
	signers, err := cfg.Signers()
	if err != nil {
		return nil, err
	}
	if len(signers) == 0 {
		return nil, fmt.Errorf("validators.keys is required")
	}

	workerAcc, err := workerAccount(cfg, log)
	if err != nil {
		return nil, err
	}
	adapters, err := buildAdapters(cfg)
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:     cfg,
		log:     log.Named("devnet"),
		metrics: metrics.New(),
		chains:  make(relay.Chains),
	}

	validators := make([]common.Address, len(signers))
	for i, s := range signers {
		validators[i] = s.Address()
	}

	for i := range cfg.Chains {
		ch := &cfg.Chains[i]
		c, err := n.openChain(ch, adapters, workerAcc, validators)
		if err != nil {
			n.closeChains()
			return nil, fmt.Errorf("chain %d: %w", ch.ID, err)
		}
		n.chains[ch.ID] = c
	}

	n.journal, err = relay.OpenJournal(cfg.Relay.Journal)
	if err != nil {
		n.closeChains()
		return nil, err
	}

	gasReceiver := workerAcc
	if cfg.Relay.GasReceiver != "" {
		gasReceiver = common.HexToAddress(cfg.Relay.GasReceiver)
	}

	n.worker = relay.NewWorker(relay.WorkerConfig{
		Chains:      n.chains,
		Journal:     n.journal,
		Account:     workerAcc,
		Adapter:     common.HexToAddress(cfg.Relay.Adapter),
		MaxAttempts: cfg.Relay.MaxAttempts,
		Metrics:     n.metrics,
		Logger:      log,
	})
	n.attestor = relay.NewAttestor(relay.AttestorConfig{
		Chains:         n.chains,
		Journal:        n.journal,
		Signers:        signers,
		GasFeeReceiver: gasReceiver,
		Expiry:         cfg.Relay.Expiry,
		BatchSize:      cfg.Relay.BatchSize,
		MaxAttempts:    cfg.Relay.MaxAttempts,
		Metrics:        n.metrics,
		Logger:         log,
	})
	if err := n.worker.Subscribe(); err != nil {
		n.closeChains()
		return nil, err
	}
	if err := n.attestor.Subscribe(); err != nil {
		n.closeChains()
		return nil, err
	}
	return n, nil
}

func (n *Node) openChain(ch *config.ChainConfig, adapters map[common.Address]exchange.Adapter, workerAcc common.Address, validators []common.Address) (*chain.Chain, error) {
	rc := ch.ChainConfig()
	rc.Metrics = n.metrics
	rc.Logger = n.log
	c, err := chain.Open(rc)
	if err != nil {
		return nil, err
	}
	for id, adapter := range adapters {
		c.Adapters().Register(id, adapter)
	}

	g, err := ch.Genesis([]common.Address{workerAcc}, validators)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if g.Threshold == 0 {
		g.Threshold = n.cfg.Validators.Threshold
	}
	if g.Threshold == 0 {
		g.Threshold = uint64(len(validators))
	}
	if err := c.Bootstrap(g); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Chains returns the devnet's chains
func (n *Node) Chains() relay.Chains {
	return n.chains
}

// Journal returns the relay journal
func (n *Node) Journal() *relay.Journal {
	return n.journal
}

// RPCAddr returns the address the JSON-RPC endpoint listens on
func (n *Node) RPCAddr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rpcAddr
}

// MetricsAddr returns the address the metrics endpoint listens on
func (n *Node) MetricsAddr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.promAddr
}

// Start runs the relay and the endpoints in the background
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return fmt.Errorf("devnet is already running")
	}
	if n.closed {
		return fmt.Errorf("devnet is stopped")
	}

	handler, err := api.NewServer(n.chains, n.journal, n.log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)

	if addr := n.cfg.RPC.Listen; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/", handler)
		n.rpcAddr, err = n.serve(group, addr, mux)
		if err != nil {
			cancel()
			n.shutdownServers()
			return err
		}
	}
	if addr := n.cfg.Metrics.Listen; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", n.metrics.Handler())
		n.promAddr, err = n.serve(group, addr, mux)
		if err != nil {
			cancel()
			n.shutdownServers()
			return err
		}
	}

	interval := n.cfg.Relay.PollInterval
	group.Go(func() error { return n.worker.Run(ctx, interval) })
	group.Go(func() error { return n.attestor.Run(ctx, interval) })
	group.Go(func() error {
		<-ctx.Done()
		n.shutdownServers()
		return nil
	})

	n.running = true
	n.cancel = cancel
	n.group = group

	n.log.Info("devnet started",
		zap.Uint64s("chains", n.chains.IDs()),
		zap.String("rpc", n.rpcAddr),
		zap.String("metrics", n.promAddr))
	return nil
}

// serve listens on addr and serves handler until shutdown
func (n *Node) serve(group *errgroup.Group, addr string, handler http.Handler) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	n.servers = append(n.servers, srv)
	group.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return ln.Addr().String(), nil
}

func (n *Node) shutdownServers() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range n.servers {
		if err := srv.Shutdown(ctx); err != nil {
			n.log.Warn("server shutdown failed", zap.Error(err))
		}
	}
}

// Wait blocks until the devnet stops and returns the first service error
func (n *Node) Wait() error {
	n.mu.Lock()
	group := n.group
	n.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// Stop halts the services and closes every chain
func (n *Node) Stop() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	running := n.running
	n.running = false
	if running {
		n.cancel()
	}
	group := n.group
	n.mu.Unlock()

	var err error
	if running {
		err = group.Wait()
	}
	n.closeChains()
	n.log.Info("devnet stopped")
	return err
}

func (n *Node) closeChains() {
	for id, c := range n.chains {
		if err := c.Close(); err != nil {
			n.log.Warn("failed to close chain", zap.Uint64("chain", id), zap.Error(err))
		}
	}
}

// workerAccount is the address holding the worker role. Without a
// configured key a throwaway one is generated.
func workerAccount(cfg *config.Config, log *zap.Logger) (common.Address, error) {
	if cfg.Relay.WorkerKey != "" {
		s, err := attest.SignerFromHex(cfg.Relay.WorkerKey)
		if err != nil {
			return common.Address{}, fmt.Errorf("relay.worker_key: %w", err)
		}
		return s.Address(), nil
	}
	s, err := attest.GenerateSigner()
	if err != nil {
		return common.Address{}, err
	}
	log.Warn("relay.worker_key not set, using a generated worker account", zap.String("account", s.Address().Hex()))
	return s.Address(), nil
}

// buildAdapters creates the configured exchange adapters
func buildAdapters(cfg *config.Config) (map[common.Address]exchange.Adapter, error) {
	adapters := make(map[common.Address]exchange.Adapter, len(cfg.Adapters))
	var quoter exchange.Quoter

	for i, a := range cfg.Adapters {
		id := common.HexToAddress(a.ID)
		inventory := common.HexToAddress(a.Inventory)

		switch a.Kind {
		case "rate":
			rates := exchange.NewRateAdapter(inventory)
			for _, r := range a.Rates {
				rate, err := config.ParseRate(r.Rate)
				if err != nil {
					return nil, fmt.Errorf("adapters[%d]: %w", i, err)
				}
				rates.SetRate(common.HexToAddress(r.Src), common.HexToAddress(r.Dst), rate)
			}
			if a.Haircut > 0 {
				rates.SetHaircut(a.Haircut)
			}
			adapters[id] = rates
		case "quote":
			if quoter == nil {
				quoter = client.NewOneClickQuoter(
					client.NewOneClickClient(cfg.OneClick.JWTToken),
					cfg.OneClick.Chain,
					cfg.OneClick.Recipient,
				)
			}
			adapters[id] = exchange.NewQuoteAdapter(inventory, quoter)
		default:
			return nil, fmt.Errorf("adapters[%d]: unknown kind %q", i, a.Kind)
		}
	}
	return adapters, nil
}
