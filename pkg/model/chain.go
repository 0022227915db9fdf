package model

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg"
)

// Chain identifies a concrete ledger a swap leg settles on. Chains belong to
// one of two families, EVM or Bitcoin, and every order crosses the two.
type Chain string

const (
	Ethereum         Chain = "ethereum"
	EthereumSepolia  Chain = "ethereum_sepolia"
	EthereumLocalnet Chain = "ethereum_localnet"

	Bitcoin        Chain = "bitcoin"
	BitcoinTestnet Chain = "bitcoin_testnet"
	BitcoinRegtest Chain = "bitcoin_regtest"
)

func (chain Chain) IsEVM() bool {
	switch chain {
	case Ethereum, EthereumSepolia, EthereumLocalnet:
		return true
	default:
		return false
	}
}

func (chain Chain) IsBTC() bool {
	switch chain {
	case Bitcoin, BitcoinTestnet, BitcoinRegtest:
		return true
	default:
		return false
	}
}

// Params returns the bitcoin network params of the chain. It panics if the
// chain is not a bitcoin chain.
func (chain Chain) Params() *chaincfg.Params {
	switch chain {
	case Bitcoin:
		return &chaincfg.MainNetParams
	case BitcoinTestnet:
		return &chaincfg.TestNet3Params
	case BitcoinRegtest:
		return &chaincfg.RegressionNetParams
	default:
		panic(fmt.Sprintf("not a bitcoin chain = %v", chain))
	}
}

// ChainID returns the EVM chain ID of the chain. It panics if the chain is
// not an EVM chain.
func (chain Chain) ChainID() *big.Int {
	switch chain {
	case Ethereum:
		return big.NewInt(1)
	case EthereumSepolia:
		return big.NewInt(11155111)
	case EthereumLocalnet:
		return big.NewInt(1337)
	default:
		panic(fmt.Sprintf("not an evm chain = %v", chain))
	}
}

// ParseChain parses a chain identifier and makes sure it is known.
func ParseChain(name string) (Chain, error) {
	chain := Chain(name)
	if !chain.IsEVM() && !chain.IsBTC() {
		return "", fmt.Errorf("unknown chain = %v", name)
	}
	return chain, nil
}

// Counterpart returns the default chain on the other ledger family for the
// same network tier, mainnet to mainnet, testnet to testnet.
func (chain Chain) Counterpart() (Chain, error) {
	switch chain {
	case Ethereum:
		return Bitcoin, nil
	case EthereumSepolia:
		return BitcoinTestnet, nil
	case EthereumLocalnet:
		return BitcoinRegtest, nil
	case Bitcoin:
		return Ethereum, nil
	case BitcoinTestnet:
		return EthereumSepolia, nil
	case BitcoinRegtest:
		return EthereumLocalnet, nil
	default:
		return "", fmt.Errorf("unknown chain = %v", chain)
	}
}
