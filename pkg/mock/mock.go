package mock

import (
	"context"
	"encoding/json"

	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/relayer"
	"github.com/ferrylabs/ferry/pkg/rest"
	"github.com/ferrylabs/ferry/pkg/store"
	"github.com/ferrylabs/ferry/pkg/swap"
)

// RelayerClient implements rest.Client with pluggable function fields. Unset
// functions are no-ops returning zero values.
type RelayerClient struct {
	FuncHealth        func() error
	FuncSubmitOrder   func(model.Chain, json.RawMessage, string) (rest.SubmitOrderResponse, error)
	FuncOrder         func(string) (model.Order, error)
	FuncOrders        func(store.OrderFilter) ([]model.Order, error)
	FuncResolveIntent func(string, string) (rest.IntentResponse, error)
	FuncVerify        func(string, string, string) (rest.VerifyResponse, error)
	FuncSubmitSecret  func(string, string) (rest.SecretResponse, error)
	FuncCancel        func(string) (rest.CancelResponse, error)
	FuncSettle        func(string, relayer.Outcome) error
}

func NewRelayerClient() *RelayerClient {
	return &RelayerClient{}
}

func (c *RelayerClient) Health() error {
	if c.FuncHealth != nil {
		return c.FuncHealth()
	}
	return nil
}

func (c *RelayerClient) SubmitOrder(chain model.Chain, payload json.RawMessage, proof string) (rest.SubmitOrderResponse, error) {
	if c.FuncSubmitOrder != nil {
		return c.FuncSubmitOrder(chain, payload, proof)
	}
	return rest.SubmitOrderResponse{}, nil
}

func (c *RelayerClient) Order(id string) (model.Order, error) {
	if c.FuncOrder != nil {
		return c.FuncOrder(id)
	}
	return model.Order{}, nil
}

func (c *RelayerClient) Orders(filter store.OrderFilter) ([]model.Order, error) {
	if c.FuncOrders != nil {
		return c.FuncOrders(filter)
	}
	return nil, nil
}

func (c *RelayerClient) ResolveIntent(orderID, resolverID string) (rest.IntentResponse, error) {
	if c.FuncResolveIntent != nil {
		return c.FuncResolveIntent(orderID, resolverID)
	}
	return rest.IntentResponse{}, nil
}

func (c *RelayerClient) Verify(orderID, escrowSrc, escrowDst string) (rest.VerifyResponse, error) {
	if c.FuncVerify != nil {
		return c.FuncVerify(orderID, escrowSrc, escrowDst)
	}
	return rest.VerifyResponse{Verified: true}, nil
}

func (c *RelayerClient) SubmitSecret(orderID, secret string) (rest.SecretResponse, error) {
	if c.FuncSubmitSecret != nil {
		return c.FuncSubmitSecret(orderID, secret)
	}
	return rest.SecretResponse{Success: true}, nil
}

func (c *RelayerClient) Cancel(orderID string) (rest.CancelResponse, error) {
	if c.FuncCancel != nil {
		return c.FuncCancel(orderID)
	}
	return rest.CancelResponse{Success: true}, nil
}

func (c *RelayerClient) Settle(orderID string, outcome relayer.Outcome) error {
	if c.FuncSettle != nil {
		return c.FuncSettle(orderID, outcome)
	}
	return nil
}

// Adapter implements swap.Adapter with pluggable function fields.
type Adapter struct {
	FuncChain                   func() model.Chain
	FuncValidateRef             func(string) error
	FuncDeriveEscrow            func(model.Order, swap.Role) (swap.Escrow, error)
	FuncDeploySourceEscrow      func(context.Context, model.Order) (swap.Escrow, error)
	FuncDeployDestinationEscrow func(context.Context, model.Order) (swap.Escrow, error)
	FuncProbeEscrow             func(context.Context, string) (swap.State, error)
	FuncWithdraw                func(context.Context, swap.Escrow, []byte) (string, error)
	FuncCancel                  func(context.Context, swap.Escrow) (string, error)
}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Chain() model.Chain {
	if a.FuncChain != nil {
		return a.FuncChain()
	}
	return model.EthereumLocalnet
}

func (a *Adapter) ValidateRef(ref string) error {
	if a.FuncValidateRef != nil {
		return a.FuncValidateRef(ref)
	}
	return nil
}

func (a *Adapter) DeriveEscrow(order model.Order, role swap.Role) (swap.Escrow, error) {
	if a.FuncDeriveEscrow != nil {
		return a.FuncDeriveEscrow(order, role)
	}
	return swap.Escrow{Role: role}, nil
}

func (a *Adapter) DeploySourceEscrow(ctx context.Context, order model.Order) (swap.Escrow, error) {
	if a.FuncDeploySourceEscrow != nil {
		return a.FuncDeploySourceEscrow(ctx, order)
	}
	return swap.Escrow{Role: swap.RoleSource}, nil
}

func (a *Adapter) DeployDestinationEscrow(ctx context.Context, order model.Order) (swap.Escrow, error) {
	if a.FuncDeployDestinationEscrow != nil {
		return a.FuncDeployDestinationEscrow(ctx, order)
	}
	return swap.Escrow{Role: swap.RoleDestination}, nil
}

func (a *Adapter) ProbeEscrow(ctx context.Context, ref string) (swap.State, error) {
	if a.FuncProbeEscrow != nil {
		return a.FuncProbeEscrow(ctx, ref)
	}
	return swap.State{Funded: true, Balance: "0"}, nil
}

func (a *Adapter) Withdraw(ctx context.Context, escrow swap.Escrow, secret []byte) (string, error) {
	if a.FuncWithdraw != nil {
		return a.FuncWithdraw(ctx, escrow, secret)
	}
	return "", nil
}

func (a *Adapter) Cancel(ctx context.Context, escrow swap.Escrow) (string, error) {
	if a.FuncCancel != nil {
		return a.FuncCancel(ctx, escrow)
	}
	return "", nil
}
