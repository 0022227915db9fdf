package util

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/ferrylabs/ferry/pkg/model"
)

// Key is a per-chain signing key derived from the wallet mnemonic.
type Key struct {
	inner *bip32.Key
}

func (key *Key) BtcKey() *btcec.PrivateKey {
	privKey, _ := btcec.PrivKeyFromBytes(key.inner.Key)
	return privKey
}

func (key *Key) ECDSA() (*ecdsa.PrivateKey, error) {
	return crypto.ToECDSA(key.inner.Key)
}

func (key *Key) Address(chain model.Chain) (string, error) {
	switch {
	case chain.IsBTC():
		addr, err := key.WitnessAddress(chain.Params())
		if err != nil {
			return "", err
		}
		return addr.EncodeAddress(), nil
	case chain.IsEVM():
		addr, err := key.EvmAddress()
		if err != nil {
			return "", err
		}
		return addr.Hex(), nil
	default:
		return "", fmt.Errorf("unsupported chain type %v", chain)
	}
}

func (key *Key) WitnessAddress(network *chaincfg.Params) (btcutil.Address, error) {
	keyBytesHash := btcutil.Hash160(key.BtcKey().PubKey().SerializeCompressed())
	return btcutil.NewAddressWitnessPubKeyHash(keyBytesHash, network)
}

func (key *Key) EvmAddress() (common.Address, error) {
	ecdsaKey, err := key.ECDSA()
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(ecdsaKey.PublicKey), nil
}

// LoadKey derives the chain key from the mnemonic. Bitcoin chains use coin
// index 0 (1 on the test networks), evm chains use 60.
func LoadKey(mnemonic string, chain model.Chain) (*Key, error) {
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	masterKey, err := bip32.NewMasterKey(entropy)
	if err != nil {
		return nil, err
	}

	var index uint32
	switch {
	case chain == model.Bitcoin:
		index = 0
	case chain.IsBTC():
		index = 1
	case chain.IsEVM():
		index = 60
	default:
		return nil, fmt.Errorf("invalid chain: %s", chain)
	}

	childKey, err := masterKey.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("failed to create child key: %v", err)
	}
	return &Key{childKey}, nil
}
