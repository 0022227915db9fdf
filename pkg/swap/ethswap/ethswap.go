package ethswap

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/swap"
)

// Escrow is one leg of a swap held by the vault. The id is derived from the
// hashlock and the initiator, so the same order always maps to the same
// escrow and the two legs never collide.
type Escrow struct {
	ID         [32]byte
	Initiator  common.Address
	Redeemer   common.Address
	SecretHash common.Hash
	Amount     *big.Int
	Expiry     *big.Int
}

func EscrowID(secretHash common.Hash, initiator common.Address) [32]byte {
	return sha256.Sum256(append(secretHash[:], common.BytesToHash(initiator.Bytes()).Bytes()...))
}

// NewEscrow builds an escrow from its raw parameters.
func NewEscrow(initiator, redeemer common.Address, secretHash common.Hash, amount, expiry *big.Int) Escrow {
	return Escrow{
		ID:         EscrowID(secretHash, initiator),
		Initiator:  initiator,
		Redeemer:   redeemer,
		SecretHash: secretHash,
		Amount:     amount,
		Expiry:     expiry,
	}
}

// FromOrder maps an order to the escrow of the given role. The source leg
// locks the maker's funds for the resolver, the destination leg locks the
// resolver's funds for the maker's receive address.
func FromOrder(order model.Order, role swap.Role, resolver common.Address) (Escrow, error) {
	secretHashBytes, err := hex.DecodeString(order.SecretHash)
	if err != nil {
		return Escrow{}, fmt.Errorf("failed to decode secret hash, %v", err)
	}
	secretHash := common.BytesToHash(secretHashBytes)

	switch role {
	case swap.RoleSource:
		payload, err := model.DecodeEvmPayload(order.Payload)
		if err != nil {
			return Escrow{}, err
		}
		amount, ok := new(big.Int).SetString(payload.SendAmount, 10)
		if !ok {
			return Escrow{}, fmt.Errorf("invalid send amount %v", payload.SendAmount)
		}
		maker := common.HexToAddress(payload.Maker)
		expiry := new(big.Int).SetUint64(payload.Timelocks.SrcCancel)
		return NewEscrow(maker, resolver, secretHash, amount, expiry), nil
	case swap.RoleDestination:
		payload, err := model.DecodeBtcPayload(order.Payload)
		if err != nil {
			return Escrow{}, err
		}
		amount, ok := new(big.Int).SetString(payload.ReceiveAmount, 10)
		if !ok {
			return Escrow{}, fmt.Errorf("invalid receive amount %v", payload.ReceiveAmount)
		}
		receiver := common.HexToAddress(payload.Receiver)
		expiry := new(big.Int).SetUint64(payload.Timelocks.DstCancel)
		return NewEscrow(resolver, receiver, secretHash, amount, expiry), nil
	default:
		return Escrow{}, fmt.Errorf("unknown role %v", role)
	}
}

// Ref is the escrow id rendered the way it travels through the API.
func (escrow Escrow) Ref() string {
	return "0x" + hex.EncodeToString(escrow.ID[:])
}

// ParseRef decodes an escrow reference back into the vault key.
func ParseRef(ref string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(ref, "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("malformed escrow reference, %v", err)
	}
	if len(decoded) != 32 {
		return id, fmt.Errorf("escrow reference must be 32 bytes, got %v", len(decoded))
	}
	copy(id[:], decoded)
	return id, nil
}
