package model

import (
	"encoding/hex"
	"fmt"
	"time"
)

// OrderStatus is the lifecycle state of an order. Status only moves along the
// edges returned by ValidTransition, terminal states never regress.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderVerified   OrderStatus = "verified"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderFailed     OrderStatus = "failed"
	OrderCancelled  OrderStatus = "cancelled"
)

func (status OrderStatus) Terminal() bool {
	switch status {
	case OrderCompleted, OrderFailed, OrderCancelled:
		return true
	default:
		return false
	}
}

// transitions is the full edge table of the order state machine. A secret may
// arrive before the escrows have been verified, so pending goes straight to
// processing as well.
var transitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderVerified, OrderProcessing, OrderCancelled, OrderFailed},
	OrderVerified:   {OrderProcessing, OrderCancelled, OrderFailed},
	OrderProcessing: {OrderCompleted, OrderCancelled, OrderFailed},
}

// ValidTransition reports whether the state machine allows moving the order
// status from one state to the other.
func ValidTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Order is the maker's submitted intent to swap, the unit of work tracked by
// the relayer and driven by the resolver.
type Order struct {
	ID string `gorm:"primaryKey" json:"id"`

	OriginChain Chain `json:"originChain"`
	TargetChain Chain `json:"targetChain"`

	// Payload is the chain-specific order description, kept as the exact
	// bytes the maker submitted. Its shape is tagged by OriginChain, see
	// DecodeEvmPayload and DecodeBtcPayload.
	Payload []byte `json:"payload"`

	// Proof is a hex signature for EVM-origin orders and a funding
	// transaction hash for bitcoin-origin orders.
	Proof string `json:"proof"`

	// SecretHash is the hashlock commitment extracted from the payload at
	// submission, sha256 of the 32 byte secret.
	SecretHash string `json:"secretHash"`

	// Secret is empty until revealed by the maker, set at most once.
	Secret string `json:"secret,omitempty"`

	// Resolver is the id of the resolver holding deployment responsibility,
	// fixed once assigned.
	Resolver string `json:"resolver,omitempty"`

	Status OrderStatus `json:"status"`

	// Error carries the human readable reason when the status is failed.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidateSubmission checks the per-chain required fields of a newly
// submitted order before it is accepted into the store.
func (order Order) ValidateSubmission() error {
	if !order.OriginChain.IsEVM() && !order.OriginChain.IsBTC() {
		return fmt.Errorf("unknown origin chain = %v", order.OriginChain)
	}
	if order.TargetChain != "" {
		if order.OriginChain.IsEVM() == order.TargetChain.IsEVM() {
			return fmt.Errorf("origin and target chain must be on different ledgers")
		}
	}
	if len(order.Payload) == 0 {
		return fmt.Errorf("missing payload")
	}

	switch {
	case order.OriginChain.IsEVM():
		// Off-chain signed order, the proof is a 65 byte signature.
		sig, err := hex.DecodeString(trim0x(order.Proof))
		if err != nil {
			return fmt.Errorf("invalid signature encoding, %v", err)
		}
		if len(sig) != 65 {
			return fmt.Errorf("invalid signature length = %v", len(sig))
		}
		payload, err := DecodeEvmPayload(order.Payload)
		if err != nil {
			return err
		}
		return payload.Validate()
	default:
		// On-chain submitted order, the proof is the funding tx hash.
		hash, err := hex.DecodeString(trim0x(order.Proof))
		if err != nil {
			return fmt.Errorf("invalid transaction hash encoding, %v", err)
		}
		if len(hash) != 32 {
			return fmt.Errorf("invalid transaction hash length = %v", len(hash))
		}
		payload, err := DecodeBtcPayload(order.Payload)
		if err != nil {
			return err
		}
		return payload.Validate()
	}
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
