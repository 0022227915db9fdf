package ethswap

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ferrylabs/ferry/pkg/model"
)

type Options struct {
	Chain     model.Chain
	ChainID   *big.Int
	VaultAddr common.Address
}

func NewOptions(chain model.Chain, vaultAddr common.Address) Options {
	return Options{
		Chain:     chain,
		ChainID:   chain.ChainID(),
		VaultAddr: vaultAddr,
	}
}

func OptionsMainnet(vaultAddr common.Address) Options {
	return NewOptions(model.Ethereum, vaultAddr)
}

func OptionsLocalnet(vaultAddr common.Address) Options {
	return NewOptions(model.EthereumLocalnet, vaultAddr)
}

func (opts Options) WithChainID(id *big.Int) Options {
	opts.ChainID = id
	return opts
}

func (opts Options) WithVaultAddr(vaultAddr common.Address) Options {
	opts.VaultAddr = vaultAddr
	return opts
}
