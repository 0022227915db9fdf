package swap

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ferrylabs/ferry/pkg/model"
)

// Action is a chain operation the resolver performs at most once per order.
// The resolver records every performed action so a restarted pipeline does
// not repeat a deployment or a withdrawal.
type Action string

var (
	ActionDeploySrc   Action = "deploy_src"
	ActionDeployDst   Action = "deploy_dst"
	ActionWithdrawSrc Action = "withdraw_src"
	ActionWithdrawDst Action = "withdraw_dst"
	ActionCancel      Action = "cancel"
)

// Role tells which leg of the swap an escrow belongs to.
type Role string

const (
	RoleSource      Role = "source"
	RoleDestination Role = "destination"
)

// ErrWithdrawRejected is the single error kind for a withdrawal the chain
// refused: wrong secret, outside the permitted window, or already spent. The
// adapter does not distinguish the reasons, none of them is retryable.
var ErrWithdrawRejected = errors.New("withdraw rejected")

// Escrow is one deployed leg of a swap. It is derived from the order, passed
// between pipeline stages and never persisted on its own.
type Escrow struct {
	Chain   model.Chain `json:"chain"`
	Role    Role        `json:"role"`
	Address string      `json:"address"`
	TxHash  string      `json:"txHash"`

	// Immutables are the chain-specific escrow parameters needed to operate
	// on the escrow later, opaque to everything but the owning adapter.
	Immutables json.RawMessage `json:"immutables"`
}

// State is the observed on-chain state of an escrow, used by the relayer's
// verification probes.
type State struct {
	Funded    bool   `json:"funded"`
	Balance   string `json:"balance"`
	Withdrawn bool   `json:"withdrawn"`
	Cancelled bool   `json:"cancelled"`
}

// Adapter is the per-ledger-family capability the resolver and the relayer
// operate through. Every call is a single best-effort attempt, retry and
// backoff policy belongs to the caller.
type Adapter interface {
	Chain() model.Chain

	// ValidateRef checks that an escrow reference is well formed for this
	// chain without touching the network.
	ValidateRef(ref string) error

	// DeriveEscrow computes the escrow for the given order and role without
	// deploying anything. Derivation is deterministic, a restarted pipeline
	// recovers the same escrow from the order alone.
	DeriveEscrow(order model.Order, role Role) (Escrow, error)

	// DeploySourceEscrow locks the maker's funds under the order's hashlock
	// and source timelocks.
	DeploySourceEscrow(ctx context.Context, order model.Order) (Escrow, error)

	// DeployDestinationEscrow locks the resolver's own funds under the same
	// hashlock with the shorter destination timelocks.
	DeployDestinationEscrow(ctx context.Context, order model.Order) (Escrow, error)

	// ProbeEscrow reads the current on-chain state of an escrow.
	ProbeEscrow(ctx context.Context, ref string) (State, error)

	// Withdraw claims the escrowed funds with the secret. Rejections are
	// reported as ErrWithdrawRejected.
	Withdraw(ctx context.Context, escrow Escrow, secret []byte) (string, error)

	// Cancel reclaims the escrowed funds after the cancel window opened.
	Cancel(ctx context.Context, escrow Escrow) (string, error)
}
