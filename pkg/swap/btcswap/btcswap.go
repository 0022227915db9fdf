package btcswap

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/catalogfi/blockchain/btc"

	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/swap"
)

// Escrow is a P2WSH HTLC on a bitcoin network. The script commits to the
// hashlock, the two parties and the refund delay, so the address alone
// identifies the escrow.
type Escrow struct {
	Network    *chaincfg.Params
	Amount     int64
	SecretHash []byte
	WaitBlock  int64
	Address    btcutil.Address
	Initiator  btcutil.Address
	Redeemer   btcutil.Address
	Script     []byte
}

func NewEscrow(network *chaincfg.Params, initiator, redeemer btcutil.Address, amount int64, secretHash []byte, waitBlock int64) (Escrow, error) {
	htlc, err := btc.HtlcScript(initiator.ScriptAddress(), redeemer.ScriptAddress(), secretHash, waitBlock)
	if err != nil {
		return Escrow{}, err
	}
	addr, err := btc.P2wshAddress(htlc, network)
	if err != nil {
		return Escrow{}, err
	}

	return Escrow{
		Network:    network,
		Amount:     amount,
		SecretHash: secretHash,
		WaitBlock:  waitBlock,
		Address:    addr,
		Initiator:  initiator,
		Redeemer:   redeemer,
		Script:     htlc,
	}, nil
}

// FromOrder maps an order to the htlc of the given role. The source leg is
// funded by the maker and redeemable by the resolver. The destination leg is
// funded by the resolver, who also holds the redeem key and pays the claim
// out to the maker's receive address.
func FromOrder(order model.Order, role swap.Role, network *chaincfg.Params, resolver btcutil.Address) (Escrow, error) {
	secretHash, err := hex.DecodeString(order.SecretHash)
	if err != nil {
		return Escrow{}, fmt.Errorf("failed to decode secret hash, %v", err)
	}

	switch role {
	case swap.RoleSource:
		payload, err := model.DecodeBtcPayload(order.Payload)
		if err != nil {
			return Escrow{}, err
		}
		maker, err := btcutil.DecodeAddress(payload.Maker, network)
		if err != nil {
			return Escrow{}, fmt.Errorf("failed to decode maker address, %v", err)
		}
		return NewEscrow(network, maker, resolver, payload.SendAmount, secretHash, int64(payload.Timelocks.SrcCancel))
	case swap.RoleDestination:
		payload, err := model.DecodeEvmPayload(order.Payload)
		if err != nil {
			return Escrow{}, err
		}
		return NewEscrow(network, resolver, resolver, payload.ReceiveAmount, secretHash, int64(payload.Timelocks.DstCancel))
	default:
		return Escrow{}, fmt.Errorf("unknown role %v", role)
	}
}

// Funded returns whether the escrow address holds enough confirmed funds, and
// the height of the last confirmed funding tx.
func (escrow *Escrow) Funded(ctx context.Context, client btc.IndexerClient) (bool, uint64, error) {
	utxos, err := client.GetUTXOs(ctx, escrow.Address)
	if err != nil {
		return false, 0, fmt.Errorf("failed to get UTXOs: %w", err)
	}

	total, blockHeight := int64(0), uint64(0)
	for _, utxo := range utxos {
		if utxo.Status != nil && utxo.Status.Confirmed {
			total += utxo.Amount
			if utxo.Status.BlockHeight != nil && *utxo.Status.BlockHeight > blockHeight {
				blockHeight = *utxo.Status.BlockHeight
			}
		}
	}

	return total >= escrow.Amount, blockHeight, nil
}

// Claimed scans the spends of the escrow address for the redeem witness and
// returns the revealed secret if found.
func (escrow *Escrow) Claimed(ctx context.Context, client btc.IndexerClient) (bool, []byte, error) {
	txs, err := client.GetAddressTxs(ctx, escrow.Address, "")
	if err != nil {
		return false, nil, err
	}
	for _, tx := range txs {
		for _, vin := range tx.VINs {
			if vin.Prevout.ScriptPubKeyAddress != escrow.Address.EncodeAddress() {
				continue
			}
			// The redeem witness is [sig, pubkey, secret, 0x1, script], the
			// refund witness has no secret element.
			if len(*vin.Witness) == 5 {
				secretString := (*vin.Witness)[2]
				secretBytes := make([]byte, hex.DecodedLen(len(secretString)))
				if _, err := hex.Decode(secretBytes, []byte(secretString)); err != nil {
					return false, nil, err
				}
				return true, secretBytes, nil
			}
		}
	}
	return false, nil, nil
}

// Expired returns whether the refund path of the htlc is spendable.
func (escrow *Escrow) Expired(ctx context.Context, client btc.IndexerClient) (bool, error) {
	claimed, _, err := escrow.Claimed(ctx, client)
	if err != nil {
		return false, err
	}
	if claimed {
		return false, fmt.Errorf("escrow has been claimed")
	}

	funded, fundedBlock, err := escrow.Funded(ctx, client)
	if err != nil {
		return false, err
	}
	if !funded {
		return false, fmt.Errorf("escrow not funded")
	}

	current, err := client.GetTipBlockHeight(ctx)
	if err != nil {
		return false, err
	}
	return current-fundedBlock+1 >= uint64(escrow.WaitBlock), nil
}
