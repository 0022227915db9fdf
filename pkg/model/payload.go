package model

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
)

// Timelocks are the block offsets of the four escrow windows, counted from
// each escrow's own inclusion. The destination windows must be strictly
// shorter than the source windows: a resolver revealing the secret on the
// destination leg needs the source cancellation window still closed while it
// claims the source leg with the same secret.
type Timelocks struct {
	SrcWithdraw uint64 `json:"srcWithdraw"`
	SrcCancel   uint64 `json:"srcCancel"`
	DstWithdraw uint64 `json:"dstWithdraw"`
	DstCancel   uint64 `json:"dstCancel"`
}

func (t Timelocks) Validate() error {
	if t.SrcWithdraw == 0 || t.SrcCancel == 0 || t.DstWithdraw == 0 || t.DstCancel == 0 {
		return fmt.Errorf("timelock offsets must be non-zero")
	}
	if t.SrcWithdraw >= t.SrcCancel {
		return fmt.Errorf("source withdraw window must close before the cancel window opens")
	}
	if t.DstWithdraw >= t.DstCancel {
		return fmt.Errorf("destination withdraw window must close before the cancel window opens")
	}
	if t.DstCancel >= t.SrcCancel {
		return fmt.Errorf("destination cancel offset (%v) must be shorter than source cancel offset (%v)", t.DstCancel, t.SrcCancel)
	}
	if t.DstWithdraw >= t.SrcWithdraw {
		return fmt.Errorf("destination withdraw offset (%v) must be shorter than source withdraw offset (%v)", t.DstWithdraw, t.SrcWithdraw)
	}
	return nil
}

// EvmPayload describes an order originating on an EVM chain. The maker signs
// it off-chain and the resolver pulls the funds into the source escrow with
// that signature.
type EvmPayload struct {
	// Maker is the maker's EVM address.
	Maker string `json:"maker"`

	// Receiver is the maker's receive address on the bitcoin side.
	Receiver string `json:"receiver"`

	// Token is the ERC20 contract the maker is selling.
	Token string `json:"token"`

	// SendAmount is the token amount being locked, a decimal big integer.
	SendAmount string `json:"sendAmount"`

	// ReceiveAmount is the sats expected on the bitcoin side.
	ReceiveAmount int64 `json:"receiveAmount"`

	SecretHash string    `json:"secretHash"`
	Timelocks  Timelocks `json:"timelocks"`
}

func (p EvmPayload) Validate() error {
	if !isHexAddress(p.Maker) {
		return fmt.Errorf("invalid maker address = %v", p.Maker)
	}
	if !isHexAddress(p.Token) {
		return fmt.Errorf("invalid token address = %v", p.Token)
	}
	if p.Receiver == "" {
		return fmt.Errorf("missing receiver address")
	}
	amount, ok := new(big.Int).SetString(p.SendAmount, 10)
	if !ok || amount.Sign() <= 0 {
		return fmt.Errorf("invalid send amount = %v", p.SendAmount)
	}
	if p.ReceiveAmount <= 0 {
		return fmt.Errorf("invalid receive amount = %v", p.ReceiveAmount)
	}
	if err := validateSecretHash(p.SecretHash); err != nil {
		return err
	}
	return p.Timelocks.Validate()
}

// BtcPayload describes an order originating on a bitcoin chain. The maker
// funds the HTLC script address directly, the proof on the order is that
// funding transaction.
type BtcPayload struct {
	// Maker is the maker's bitcoin address, also the refund target.
	Maker string `json:"maker"`

	// Receiver is the maker's receive address on the EVM side.
	Receiver string `json:"receiver"`

	// Token is the ERC20 contract expected on the EVM side.
	Token string `json:"token"`

	// SendAmount is the sats locked in the source escrow.
	SendAmount int64 `json:"sendAmount"`

	// ReceiveAmount is the token amount expected on the EVM side, a decimal
	// big integer.
	ReceiveAmount string `json:"receiveAmount"`

	SecretHash string    `json:"secretHash"`
	Timelocks  Timelocks `json:"timelocks"`
}

func (p BtcPayload) Validate() error {
	if p.Maker == "" {
		return fmt.Errorf("missing maker address")
	}
	if !isHexAddress(p.Receiver) {
		return fmt.Errorf("invalid receiver address = %v", p.Receiver)
	}
	if !isHexAddress(p.Token) {
		return fmt.Errorf("invalid token address = %v", p.Token)
	}
	if p.SendAmount <= 0 {
		return fmt.Errorf("invalid send amount = %v", p.SendAmount)
	}
	amount, ok := new(big.Int).SetString(p.ReceiveAmount, 10)
	if !ok || amount.Sign() <= 0 {
		return fmt.Errorf("invalid receive amount = %v", p.ReceiveAmount)
	}
	if err := validateSecretHash(p.SecretHash); err != nil {
		return err
	}
	return p.Timelocks.Validate()
}

// DecodeEvmPayload decodes the payload bytes of an EVM-origin order. Unknown
// fields are rejected so a malformed payload fails at submission rather than
// in the middle of the resolver pipeline.
func DecodeEvmPayload(data []byte) (EvmPayload, error) {
	var payload EvmPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return EvmPayload{}, fmt.Errorf("malformed evm payload, %v", err)
	}
	return payload, nil
}

// DecodeBtcPayload decodes the payload bytes of a bitcoin-origin order.
func DecodeBtcPayload(data []byte) (BtcPayload, error) {
	var payload BtcPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return BtcPayload{}, fmt.Errorf("malformed bitcoin payload, %v", err)
	}
	return payload, nil
}

// SecretHashFromPayload extracts the hashlock commitment for either payload
// variant without interpreting the rest of the payload.
func SecretHashFromPayload(origin Chain, data []byte) (string, error) {
	if origin.IsEVM() {
		payload, err := DecodeEvmPayload(data)
		if err != nil {
			return "", err
		}
		return normalizeHash(payload.SecretHash), nil
	}
	payload, err := DecodeBtcPayload(data)
	if err != nil {
		return "", err
	}
	return normalizeHash(payload.SecretHash), nil
}

func validateSecretHash(hash string) error {
	decoded, err := hex.DecodeString(trim0x(hash))
	if err != nil {
		return fmt.Errorf("invalid secret hash encoding, %v", err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("invalid secret hash length = %v", len(decoded))
	}
	return nil
}

func normalizeHash(hash string) string {
	return trim0x(hash)
}

func isHexAddress(addr string) bool {
	addr = trim0x(addr)
	if len(addr) != 40 {
		return false
	}
	_, err := hex.DecodeString(addr)
	return err == nil
}
