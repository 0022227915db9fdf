package relayer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/store"
	"github.com/ferrylabs/ferry/pkg/swap"
)

// SubmitRequest is a maker's order submission.
type SubmitRequest struct {
	Chain   model.Chain `json:"chain"`
	Payload []byte      `json:"payload"`
	Proof   string      `json:"proof"`
}

// Receipt is returned on a successful submission.
type Receipt struct {
	OrderID string            `json:"orderId"`
	Status  model.OrderStatus `json:"status"`
	Fee     string            `json:"fee"`
	ETA     time.Duration     `json:"estimatedProcessingTime"`
}

// VerifyResult reports the escrow sanity checks. Probe failures become
// issues, an empty issue list means both escrows look sound.
type VerifyResult struct {
	Verified bool     `json:"verified"`
	Issues   []string `json:"issues"`
}

// Outcome is the resolver-reported terminal result of an order.
type Outcome struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	SrcTxHash string `json:"srcTxHash,omitempty"`
	DstTxHash string `json:"dstTxHash,omitempty"`
}

// Intent is the resolve-intent answer: the direction of the order and the
// order itself, returned only to the assigned resolver.
type Intent struct {
	OrderID     string      `json:"orderId"`
	TargetChain model.Chain `json:"targetChain"`
	Order       model.Order `json:"order"`
}

// Relayer owns the order state machine. It is the only component that
// mutates order status, everything it rejects is reported as a typed error
// rather than crashing the host.
type Relayer interface {
	Submit(req SubmitRequest) (Receipt, error)
	Verify(ctx context.Context, id, srcRef, dstRef string) (VerifyResult, error)
	SubmitSecret(id, secret string) (model.OrderStatus, error)
	Cancel(id string) error
	Settle(id string, outcome Outcome) error
	ResolveIntent(orderID, resolverID string) (Intent, error)
	Order(id string) (model.Order, error)
	Orders(filter store.OrderFilter) ([]model.Order, error)
}

// Options tune fees and probe budgets. Zero values fall back to defaults.
type Options struct {
	// FeeBps is the relayer fee in basis points of the send amount.
	FeeBps int

	// ProbeTimeout bounds every single verification probe.
	ProbeTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		FeeBps:       10,
		ProbeTimeout: 10 * time.Second,
	}
}

type relayer struct {
	opts     Options
	storage  store.Store
	adapters map[model.Chain]swap.Adapter
	logger   *zap.Logger
}

// New returns a Relayer backed by the given store. The adapters are used for
// read-only escrow probes during verification, keyed by chain.
func New(opts Options, storage store.Store, adapters map[model.Chain]swap.Adapter, logger *zap.Logger) Relayer {
	if opts.FeeBps == 0 {
		opts.FeeBps = DefaultOptions().FeeBps
	}
	if opts.ProbeTimeout == 0 {
		opts.ProbeTimeout = DefaultOptions().ProbeTimeout
	}
	return &relayer{
		opts:     opts,
		storage:  storage,
		adapters: adapters,
		logger:   logger,
	}
}

func (r *relayer) Submit(req SubmitRequest) (Receipt, error) {
	targetChain, err := req.Chain.Counterpart()
	if err != nil {
		return Receipt{}, ValidationError{Reason: err.Error()}
	}

	order := model.Order{
		ID:          uuid.NewString(),
		OriginChain: req.Chain,
		TargetChain: targetChain,
		Payload:     req.Payload,
		Proof:       req.Proof,
		Status:      model.OrderPending,
	}
	if err := order.ValidateSubmission(); err != nil {
		return Receipt{}, ValidationError{Reason: err.Error()}
	}

	secretHash, err := model.SecretHashFromPayload(order.OriginChain, order.Payload)
	if err != nil {
		return Receipt{}, ValidationError{Reason: err.Error()}
	}
	order.SecretHash = strings.ToLower(secretHash)

	fee, err := r.estimateFee(order)
	if err != nil {
		return Receipt{}, ValidationError{Reason: err.Error()}
	}

	if err := r.storage.CreateOrder(&order); err != nil {
		return Receipt{}, err
	}
	r.logger.Info("order submitted",
		zap.String("order", order.ID),
		zap.String("origin", string(order.OriginChain)),
		zap.String("target", string(order.TargetChain)))

	return Receipt{
		OrderID: order.ID,
		Status:  order.Status,
		Fee:     fee,
		ETA:     r.estimateETA(order),
	}, nil
}

func (r *relayer) Verify(ctx context.Context, id, srcRef, dstRef string) (VerifyResult, error) {
	order, err := r.storage.Order(id)
	if err != nil {
		return VerifyResult{}, err
	}

	switch {
	case order.Status == model.OrderVerified, order.Status == model.OrderProcessing:
		// Escrows were already accepted, repeating the call is a no-op.
		return VerifyResult{Verified: true}, nil
	case order.Status.Terminal():
		return VerifyResult{}, StateConflictError{Status: order.Status, Reason: "cannot verify a settled order"}
	}

	issues := []string{}
	issues = append(issues, r.probe(ctx, order.OriginChain, srcRef)...)
	issues = append(issues, r.probe(ctx, order.TargetChain, dstRef)...)
	if len(issues) > 0 {
		r.logger.Info("verification found issues", zap.String("order", id), zap.Strings("issues", issues))
		return VerifyResult{Verified: false, Issues: issues}, nil
	}

	if err := r.transition(order, model.OrderVerified, ""); err != nil {
		return VerifyResult{}, err
	}
	r.logger.Info("order verified", zap.String("order", id))
	return VerifyResult{Verified: true, Issues: issues}, nil
}

// probe runs the sanity checks of a single escrow. Every check carries its
// own timeout and failures are collected as issues, never raised.
func (r *relayer) probe(ctx context.Context, chain model.Chain, ref string) []string {
	adapter, ok := r.adapters[chain]
	if !ok {
		return []string{fmt.Sprintf("%v: no adapter configured", chain)}
	}
	if err := adapter.ValidateRef(ref); err != nil {
		return []string{fmt.Sprintf("%v: invalid escrow reference, %v", chain, err)}
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	defer cancel()
	state, err := adapter.ProbeEscrow(probeCtx, ref)
	if err != nil {
		return []string{fmt.Sprintf("%v: probe failed, %v", chain, err)}
	}

	issues := []string{}
	if !state.Funded {
		issues = append(issues, fmt.Sprintf("%v: escrow %v is not funded", chain, ref))
	}
	if state.Withdrawn {
		issues = append(issues, fmt.Sprintf("%v: escrow %v already withdrawn", chain, ref))
	}
	if state.Cancelled {
		issues = append(issues, fmt.Sprintf("%v: escrow %v already cancelled", chain, ref))
	}
	return issues
}

func (r *relayer) SubmitSecret(id, secret string) (model.OrderStatus, error) {
	secret = strings.ToLower(strings.TrimPrefix(secret, "0x"))
	secretBytes, err := hex.DecodeString(secret)
	if err != nil {
		return "", ValidationError{Reason: fmt.Sprintf("invalid secret encoding, %v", err)}
	}

	for {
		order, err := r.storage.Order(id)
		if err != nil {
			return "", err
		}

		// The secret must open the hashlock committed in the payload, the
		// claimed transition alone is never trusted.
		hash := sha256.Sum256(secretBytes)
		if hex.EncodeToString(hash[:]) != order.SecretHash {
			return "", ValidationError{Reason: "secret does not match the hashlock commitment"}
		}

		if order.Secret != "" {
			if order.Secret == secret {
				// Idempotent repeat of the same reveal.
				return order.Status, nil
			}
			return "", StateConflictError{Status: order.Status, Reason: "a different secret was already revealed"}
		}

		if order.Status.Terminal() {
			return "", StateConflictError{Status: order.Status, Reason: "order already settled"}
		}
		if order.Status != model.OrderPending && order.Status != model.OrderVerified {
			return "", StateConflictError{Status: order.Status, Reason: "order not awaiting a secret"}
		}

		err = r.storage.PutSecret(id, secret, model.OrderProcessing)
		if errors.Is(err, store.ErrStatusMismatch) {
			// The order moved under us, re-read and decide again.
			continue
		}
		if err != nil {
			return "", err
		}
		r.logger.Info("secret revealed", zap.String("order", id))
		return model.OrderProcessing, nil
	}
}

func (r *relayer) Cancel(id string) error {
	for {
		order, err := r.storage.Order(id)
		if err != nil {
			return err
		}
		switch order.Status {
		case model.OrderCompleted:
			return StateConflictError{Status: order.Status, Reason: "completed orders cannot be cancelled"}
		case model.OrderCancelled:
			return nil
		}
		err = r.storage.TransitionStatus(id, order.Status, model.OrderCancelled, "")
		if errors.Is(err, store.ErrStatusMismatch) {
			// The order moved under us, re-read and decide again.
			continue
		}
		if err != nil {
			return err
		}
		r.logger.Info("order cancelled", zap.String("order", id))
		return nil
	}
}

func (r *relayer) Settle(id string, outcome Outcome) error {
	order, err := r.storage.Order(id)
	if err != nil {
		return err
	}

	if outcome.Success {
		if err := r.transition(order, model.OrderCompleted, ""); err != nil {
			return err
		}
		r.logger.Info("order completed",
			zap.String("order", id),
			zap.String("src tx", outcome.SrcTxHash),
			zap.String("dst tx", outcome.DstTxHash))
		return nil
	}

	if err := r.transition(order, model.OrderFailed, outcome.Error); err != nil {
		return err
	}
	r.logger.Info("order failed", zap.String("order", id), zap.String("reason", outcome.Error))
	return nil
}

func (r *relayer) ResolveIntent(orderID, resolverID string) (Intent, error) {
	if resolverID == "" {
		return Intent{}, ValidationError{Reason: "missing resolver id"}
	}
	order, err := r.storage.Order(orderID)
	if err != nil {
		return Intent{}, err
	}

	if order.Resolver == "" {
		// The claim is a guarded write, only the first resolver can land it.
		err := r.storage.AssignResolver(orderID, resolverID)
		if errors.Is(err, store.ErrResolverTaken) {
			fresh, freshErr := r.storage.Order(orderID)
			if freshErr != nil {
				return Intent{}, freshErr
			}
			return Intent{}, AuthorizationError{OrderID: orderID, Assigned: fresh.Resolver}
		}
		if err != nil {
			return Intent{}, err
		}
		order.Resolver = resolverID
	}
	if order.Resolver != resolverID {
		return Intent{}, AuthorizationError{OrderID: orderID, Assigned: order.Resolver}
	}

	return Intent{
		OrderID:     orderID,
		TargetChain: order.TargetChain,
		Order:       order,
	}, nil
}

func (r *relayer) Order(id string) (model.Order, error) {
	return r.storage.Order(id)
}

func (r *relayer) Orders(filter store.OrderFilter) ([]model.Order, error) {
	return r.storage.Orders(filter)
}

// transition enforces the state machine edges. The write is conditional on
// the status the caller read, a concurrent writer that got there first turns
// into a StateConflictError instead of being overwritten.
func (r *relayer) transition(order model.Order, to model.OrderStatus, errMsg string) error {
	if !model.ValidTransition(order.Status, to) {
		return StateConflictError{Status: order.Status, Reason: fmt.Sprintf("cannot move to %v", to)}
	}
	err := r.storage.TransitionStatus(order.ID, order.Status, to, errMsg)
	if errors.Is(err, store.ErrStatusMismatch) {
		fresh, freshErr := r.storage.Order(order.ID)
		if freshErr != nil {
			return freshErr
		}
		if fresh.Status == to {
			// Another writer landed the same transition.
			return nil
		}
		return StateConflictError{Status: fresh.Status, Reason: fmt.Sprintf("cannot move to %v", to)}
	}
	return err
}

func (r *relayer) estimateFee(order model.Order) (string, error) {
	if order.OriginChain.IsEVM() {
		payload, err := model.DecodeEvmPayload(order.Payload)
		if err != nil {
			return "", err
		}
		amount, ok := new(big.Int).SetString(payload.SendAmount, 10)
		if !ok {
			return "", fmt.Errorf("invalid send amount = %v", payload.SendAmount)
		}
		fee := new(big.Int).Div(new(big.Int).Mul(amount, big.NewInt(int64(r.opts.FeeBps))), big.NewInt(10000))
		return fee.String(), nil
	}

	payload, err := model.DecodeBtcPayload(order.Payload)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", payload.SendAmount*int64(r.opts.FeeBps)/10000), nil
}

// estimateETA is a coarse processing-time estimate. Bitcoin-origin orders
// wait for funding confirmations before the destination leg moves.
func (r *relayer) estimateETA(order model.Order) time.Duration {
	if order.OriginChain.IsBTC() {
		return 60 * time.Minute
	}
	return 15 * time.Minute
}
