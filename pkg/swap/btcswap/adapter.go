package btcswap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/catalogfi/blockchain/btc"

	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/swap"
)

type immutables struct {
	Initiator  string `json:"initiator"`
	Redeemer   string `json:"redeemer"`
	SecretHash string `json:"secretHash"`
	Amount     int64  `json:"amount"`
	WaitBlock  int64  `json:"waitBlock"`

	// Payout is where a claim pays out. Empty means the wallet's own address.
	Payout string `json:"payout,omitempty"`
}

type adapter struct {
	chain  model.Chain
	client btc.IndexerClient
	wallet Wallet
}

// NewAdapter wraps a bitcoin wallet and indexer into the chain-neutral
// adapter the relayer and the resolver operate through.
func NewAdapter(chain model.Chain, client btc.IndexerClient, wallet Wallet) (swap.Adapter, error) {
	if !chain.IsBTC() {
		return nil, fmt.Errorf("not a bitcoin chain, %v", chain)
	}
	return &adapter{chain: chain, client: client, wallet: wallet}, nil
}

func (a *adapter) Chain() model.Chain {
	return a.chain
}

func (a *adapter) ValidateRef(ref string) error {
	_, err := btcutil.DecodeAddress(ref, a.chain.Params())
	if err != nil {
		return fmt.Errorf("malformed escrow reference, %v", err)
	}
	return nil
}

func (a *adapter) DeriveEscrow(order model.Order, role swap.Role) (swap.Escrow, error) {
	escrow, err := FromOrder(order, role, a.chain.Params(), a.wallet.Address())
	if err != nil {
		return swap.Escrow{}, err
	}
	txHash := ""
	if role == swap.RoleSource {
		txHash = order.Proof
	}
	return a.wrap(escrow, order, role, txHash)
}

// DeploySourceEscrow confirms the maker's funding instead of sending funds.
// The maker already paid the htlc address, the submitted proof names the
// funding tx.
func (a *adapter) DeploySourceEscrow(ctx context.Context, order model.Order) (swap.Escrow, error) {
	escrow, err := FromOrder(order, swap.RoleSource, a.chain.Params(), a.wallet.Address())
	if err != nil {
		return swap.Escrow{}, err
	}

	funded, _, err := escrow.Funded(ctx, a.client)
	if err != nil {
		return swap.Escrow{}, err
	}
	if !funded {
		return swap.Escrow{}, fmt.Errorf("maker funding of %v not confirmed yet", escrow.Address)
	}
	return a.wrap(escrow, order, swap.RoleSource, order.Proof)
}

func (a *adapter) DeployDestinationEscrow(ctx context.Context, order model.Order) (swap.Escrow, error) {
	escrow, err := FromOrder(order, swap.RoleDestination, a.chain.Params(), a.wallet.Address())
	if err != nil {
		return swap.Escrow{}, err
	}
	txHash, err := a.wallet.Fund(ctx, escrow)
	if err != nil {
		return swap.Escrow{}, err
	}
	return a.wrap(escrow, order, swap.RoleDestination, txHash)
}

func (a *adapter) ProbeEscrow(ctx context.Context, ref string) (swap.State, error) {
	addr, err := btcutil.DecodeAddress(ref, a.chain.Params())
	if err != nil {
		return swap.State{}, fmt.Errorf("malformed escrow reference, %v", err)
	}

	utxos, err := a.client.GetUTXOs(ctx, addr)
	if err != nil {
		return swap.State{}, err
	}
	balance, funded := int64(0), false
	for _, utxo := range utxos {
		balance += utxo.Amount
		if utxo.Status != nil && utxo.Status.Confirmed {
			funded = true
		}
	}

	// A spend of the htlc shows up in the address history. The redeem witness
	// carries the secret as its third element, the refund witness doesn't.
	withdrawn, cancelled := false, false
	txs, err := a.client.GetAddressTxs(ctx, addr, "")
	if err != nil {
		return swap.State{}, err
	}
	for _, tx := range txs {
		for _, vin := range tx.VINs {
			if vin.Prevout.ScriptPubKeyAddress != addr.EncodeAddress() {
				continue
			}
			if len(*vin.Witness) == 5 {
				withdrawn = true
			} else {
				cancelled = true
			}
			funded = true
		}
	}

	return swap.State{
		Funded:    funded,
		Balance:   fmt.Sprintf("%d", balance),
		Withdrawn: withdrawn,
		Cancelled: cancelled,
	}, nil
}

func (a *adapter) Withdraw(ctx context.Context, escrow swap.Escrow, secret []byte) (string, error) {
	inner, payout, err := a.unwrap(escrow)
	if err != nil {
		return "", err
	}

	// The script only accepts the hashlock preimage, check before spending.
	hash := sha256.Sum256(secret)
	if hex.EncodeToString(hash[:]) != hex.EncodeToString(inner.SecretHash) {
		return "", fmt.Errorf("%w, secret does not match the hashlock", swap.ErrWithdrawRejected)
	}

	if payout == "" {
		payout = a.wallet.Address().EncodeAddress()
	}
	txHash, err := a.wallet.Claim(ctx, inner, secret, payout)
	if err != nil {
		// A drained htlc means someone already went through a spend path.
		claimed, _, claimErr := inner.Claimed(ctx, a.client)
		if claimErr == nil && claimed {
			return "", fmt.Errorf("%w, escrow already claimed", swap.ErrWithdrawRejected)
		}
		return "", err
	}
	return txHash, nil
}

func (a *adapter) Cancel(ctx context.Context, escrow swap.Escrow) (string, error) {
	inner, _, err := a.unwrap(escrow)
	if err != nil {
		return "", err
	}
	if escrow.Role == swap.RoleSource {
		return "", fmt.Errorf("source escrow refunds belong to the maker")
	}
	return a.wallet.Reclaim(ctx, inner, a.wallet.Address().EncodeAddress())
}

func (a *adapter) wrap(escrow Escrow, order model.Order, role swap.Role, txHash string) (swap.Escrow, error) {
	payout := ""
	if role == swap.RoleDestination {
		payload, err := model.DecodeEvmPayload(order.Payload)
		if err != nil {
			return swap.Escrow{}, err
		}
		payout = payload.Receiver
	}

	data, err := json.Marshal(immutables{
		Initiator:  escrow.Initiator.EncodeAddress(),
		Redeemer:   escrow.Redeemer.EncodeAddress(),
		SecretHash: hex.EncodeToString(escrow.SecretHash),
		Amount:     escrow.Amount,
		WaitBlock:  escrow.WaitBlock,
		Payout:     payout,
	})
	if err != nil {
		return swap.Escrow{}, err
	}
	return swap.Escrow{
		Chain:      a.chain,
		Role:       role,
		Address:    escrow.Address.EncodeAddress(),
		TxHash:     txHash,
		Immutables: data,
	}, nil
}

func (a *adapter) unwrap(escrow swap.Escrow) (Escrow, string, error) {
	var imm immutables
	if err := json.Unmarshal(escrow.Immutables, &imm); err != nil {
		return Escrow{}, "", fmt.Errorf("malformed escrow immutables, %v", err)
	}
	network := a.chain.Params()
	initiator, err := btcutil.DecodeAddress(imm.Initiator, network)
	if err != nil {
		return Escrow{}, "", fmt.Errorf("failed to decode initiator address, %v", err)
	}
	redeemer, err := btcutil.DecodeAddress(imm.Redeemer, network)
	if err != nil {
		return Escrow{}, "", fmt.Errorf("failed to decode redeemer address, %v", err)
	}
	secretHash, err := hex.DecodeString(imm.SecretHash)
	if err != nil {
		return Escrow{}, "", fmt.Errorf("failed to decode secret hash, %v", err)
	}
	inner, err := NewEscrow(network, initiator, redeemer, imm.Amount, secretHash, imm.WaitBlock)
	if err != nil {
		return Escrow{}, "", err
	}
	return inner, imm.Payout, nil
}
