package ethswap

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/swap"
)

// Revert reasons the vault gives for a withdrawal it will never accept.
var rejectionReasons = []string{
	"invalid secret",
	"escrow fulfilled",
	"escrow cancelled",
	"escrow expired",
	"no such escrow",
}

type immutables struct {
	Initiator  string `json:"initiator"`
	Redeemer   string `json:"redeemer"`
	SecretHash string `json:"secretHash"`
	Amount     string `json:"amount"`
	Expiry     uint64 `json:"expiry"`
}

type adapter struct {
	chain  model.Chain
	wallet Wallet
}

// NewAdapter wraps an evm wallet into the chain-neutral adapter the relayer
// and the resolver operate through.
func NewAdapter(chain model.Chain, wallet Wallet) (swap.Adapter, error) {
	if !chain.IsEVM() {
		return nil, fmt.Errorf("not an evm chain, %v", chain)
	}
	return &adapter{chain: chain, wallet: wallet}, nil
}

func (a *adapter) Chain() model.Chain {
	return a.chain
}

func (a *adapter) ValidateRef(ref string) error {
	_, err := ParseRef(ref)
	return err
}

func (a *adapter) DeriveEscrow(order model.Order, role swap.Role) (swap.Escrow, error) {
	escrow, err := FromOrder(order, role, a.wallet.Address())
	if err != nil {
		return swap.Escrow{}, err
	}
	return a.wrap(escrow, role, "")
}

func (a *adapter) DeploySourceEscrow(ctx context.Context, order model.Order) (swap.Escrow, error) {
	escrow, err := FromOrder(order, swap.RoleSource, a.wallet.Address())
	if err != nil {
		return swap.Escrow{}, err
	}

	// The maker may have created the escrow directly, skip the deployment tx
	// in that case.
	details, err := a.wallet.Details(ctx, escrow.ID)
	if err != nil {
		return swap.Escrow{}, err
	}
	if details.InitiatedAt.Sign() > 0 {
		return a.wrap(escrow, swap.RoleSource, "")
	}

	signature, err := decodeProof(order.Proof)
	if err != nil {
		return swap.Escrow{}, err
	}
	txHash, err := a.wallet.CreateFor(ctx, escrow, signature)
	if err != nil {
		return swap.Escrow{}, err
	}
	return a.wrap(escrow, swap.RoleSource, txHash.Hex())
}

func (a *adapter) DeployDestinationEscrow(ctx context.Context, order model.Order) (swap.Escrow, error) {
	escrow, err := FromOrder(order, swap.RoleDestination, a.wallet.Address())
	if err != nil {
		return swap.Escrow{}, err
	}
	txHash, err := a.wallet.Create(ctx, escrow)
	if err != nil {
		return swap.Escrow{}, err
	}
	return a.wrap(escrow, swap.RoleDestination, txHash.Hex())
}

func (a *adapter) ProbeEscrow(ctx context.Context, ref string) (swap.State, error) {
	id, err := ParseRef(ref)
	if err != nil {
		return swap.State{}, err
	}
	details, err := a.wallet.Details(ctx, id)
	if err != nil {
		return swap.State{}, err
	}

	balance := new(big.Int)
	if details.InitiatedAt.Sign() > 0 && !details.Fulfilled && !details.Cancelled {
		balance = details.Amount
	}
	return swap.State{
		Funded:    details.InitiatedAt.Sign() > 0,
		Balance:   balance.String(),
		Withdrawn: details.Fulfilled,
		Cancelled: details.Cancelled,
	}, nil
}

func (a *adapter) Withdraw(ctx context.Context, escrow swap.Escrow, secret []byte) (string, error) {
	inner, err := a.unwrap(escrow)
	if err != nil {
		return "", err
	}
	txHash, err := a.wallet.Withdraw(ctx, inner, secret)
	if err != nil {
		if rejected(err) {
			return "", fmt.Errorf("%w, %v", swap.ErrWithdrawRejected, err)
		}
		return "", err
	}
	return txHash.Hex(), nil
}

func (a *adapter) Cancel(ctx context.Context, escrow swap.Escrow) (string, error) {
	inner, err := a.unwrap(escrow)
	if err != nil {
		return "", err
	}
	txHash, err := a.wallet.Cancel(ctx, inner)
	if err != nil {
		return "", err
	}
	return txHash.Hex(), nil
}

func (a *adapter) wrap(escrow Escrow, role swap.Role, txHash string) (swap.Escrow, error) {
	data, err := json.Marshal(immutables{
		Initiator:  escrow.Initiator.Hex(),
		Redeemer:   escrow.Redeemer.Hex(),
		SecretHash: escrow.SecretHash.Hex(),
		Amount:     escrow.Amount.String(),
		Expiry:     escrow.Expiry.Uint64(),
	})
	if err != nil {
		return swap.Escrow{}, err
	}
	return swap.Escrow{
		Chain:      a.chain,
		Role:       role,
		Address:    escrow.Ref(),
		TxHash:     txHash,
		Immutables: data,
	}, nil
}

func (a *adapter) unwrap(escrow swap.Escrow) (Escrow, error) {
	var imm immutables
	if err := json.Unmarshal(escrow.Immutables, &imm); err != nil {
		return Escrow{}, fmt.Errorf("malformed escrow immutables, %v", err)
	}
	amount, ok := new(big.Int).SetString(imm.Amount, 10)
	if !ok {
		return Escrow{}, fmt.Errorf("invalid escrow amount %v", imm.Amount)
	}
	return NewEscrow(
		common.HexToAddress(imm.Initiator),
		common.HexToAddress(imm.Redeemer),
		common.HexToHash(imm.SecretHash),
		amount,
		new(big.Int).SetUint64(imm.Expiry),
	), nil
}

func decodeProof(proof string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(proof), "0x")
	signature, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("malformed proof signature, %v", err)
	}
	if len(signature) != 65 {
		return nil, fmt.Errorf("proof signature must be 65 bytes, got %v", len(signature))
	}
	return signature, nil
}

func rejected(err error) bool {
	msg := err.Error()
	for _, reason := range rejectionReasons {
		if strings.Contains(msg, reason) {
			return true
		}
	}
	return false
}
