package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/rest"
	"github.com/ferrylabs/ferry/pkg/store"
	"github.com/ferrylabs/ferry/pkg/swap"
)

// Options tune the polling loop and the per-stage budgets.
type Options struct {
	// ResolverID identifies this resolver towards the relayer.
	ResolverID string

	// PollInterval is the pause between listing ticks.
	PollInterval time.Duration

	// PageSize bounds every listing query.
	PageSize int

	// Workers bounds how many order pipelines run at once. The per-chain
	// signing keys stay serialized inside the wallets regardless.
	Workers int

	// OrderTimeout bounds one full pipeline run of a single order.
	OrderTimeout time.Duration

	// CallTimeout bounds a single chain-adapter attempt.
	CallTimeout time.Duration

	// RetryDelay is the starting backoff between retries, doubling each time.
	RetryDelay time.Duration

	// ChainAttempts bounds the retries of a failing chain call.
	ChainAttempts int

	// VerifyAttempts bounds the retries of a not-yet-verified escrow pair.
	VerifyAttempts int

	// SecretPollInterval and SecretPollAttempts bound the wait for the maker
	// to reveal the secret.
	SecretPollInterval time.Duration
	SecretPollAttempts int
}

func DefaultOptions(resolverID string) Options {
	return Options{
		ResolverID:         resolverID,
		PollInterval:       10 * time.Second,
		PageSize:           32,
		Workers:            4,
		OrderTimeout:       30 * time.Minute,
		CallTimeout:        time.Minute,
		RetryDelay:         5 * time.Second,
		ChainAttempts:      3,
		VerifyAttempts:     5,
		SecretPollInterval: 10 * time.Second,
		SecretPollAttempts: 60,
	}
}

func (opts Options) validate() error {
	if opts.ResolverID == "" {
		return fmt.Errorf("missing resolver id")
	}
	if opts.PollInterval <= 0 || opts.PageSize <= 0 || opts.Workers <= 0 {
		return fmt.Errorf("poll interval, page size and workers must be positive")
	}
	if opts.ChainAttempts <= 0 || opts.VerifyAttempts <= 0 || opts.SecretPollAttempts <= 0 {
		return fmt.Errorf("attempt budgets must be positive")
	}
	return nil
}

// Resolver autonomously drives every order assigned to it from pending to a
// terminal state.
type Resolver interface {
	// Start the polling loop, it's not blocking and will spawn background
	// goroutines.
	Start() error

	// Stop gracefully shuts the resolver down, waiting for the in-flight
	// pipelines to finish.
	Stop()
}

type resolver struct {
	opts     Options
	client   rest.Client
	adapters map[model.Chain]swap.Adapter
	actions  Store
	logger   *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}

	quit chan struct{}
	wg   *sync.WaitGroup
}

// New returns a Resolver polling the given relayer client and operating the
// given chain adapters, keyed by chain.
func New(opts Options, client rest.Client, adapters map[model.Chain]swap.Adapter, actions Store, logger *zap.Logger) (Resolver, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &resolver{
		opts:     opts,
		client:   client,
		adapters: adapters,
		actions:  actions,
		logger:   logger,
		inflight: map[string]struct{}{},
		quit:     make(chan struct{}),
		wg:       new(sync.WaitGroup),
	}, nil
}

func (r *resolver) Start() error {
	r.wg.Add(1)
	go r.run()
	return nil
}

func (r *resolver) Stop() {
	if r.quit != nil {
		close(r.quit)
		r.wg.Wait()
		r.quit = nil
	}
}

func (r *resolver) run() {
	defer r.wg.Done()

	sem := make(chan struct{}, r.opts.Workers)
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	// First tick immediately, then on the interval.
	r.tick(sem)
	for {
		select {
		case <-r.quit:
			return
		case <-ticker.C:
			r.tick(sem)
		}
	}
}

// tick lists the actionable orders and dispatches a pipeline per order. New
// work is pending orders, verified and processing orders assigned to us are
// picked up again after a restart.
func (r *resolver) tick(sem chan struct{}) {
	filters := []store.OrderFilter{
		{Status: model.OrderPending, Limit: r.opts.PageSize},
		{Status: model.OrderVerified, Resolver: r.opts.ResolverID, Limit: r.opts.PageSize},
		{Status: model.OrderProcessing, Resolver: r.opts.ResolverID, Limit: r.opts.PageSize},
	}

	for _, filter := range filters {
		orders, err := r.client.Orders(filter)
		if err != nil {
			// The backend being unreachable is not fatal, the next tick retries.
			r.logger.Error("failed to list orders", zap.Error(err))
			return
		}
		for _, order := range orders {
			r.dispatch(sem, order)
		}
	}
}

func (r *resolver) dispatch(sem chan struct{}, order model.Order) {
	if !r.claim(order.ID) {
		return
	}

	select {
	case sem <- struct{}{}:
	case <-r.quit:
		r.release(order.ID)
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-sem }()
		defer r.release(order.ID)

		ctx, cancel := context.WithTimeout(context.Background(), r.opts.OrderTimeout)
		defer cancel()

		if err := r.process(ctx, order); err != nil {
			// One order's failure never stops the loop or the other orders.
			r.logger.Error("pipeline run ended with error", zap.String("order", order.ID), zap.Error(err))
		}
	}()
}

func (r *resolver) claim(orderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inflight[orderID]; ok {
		return false
	}
	r.inflight[orderID] = struct{}{}
	return true
}

func (r *resolver) release(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, orderID)
}

// sleep pauses for the given duration unless the resolver is stopping or the
// order context expired.
func (r *resolver) sleep(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.quit:
		return fmt.Errorf("resolver stopping")
	}
}
