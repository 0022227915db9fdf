package btcswap

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcwallet/waddrmgr"

	"github.com/ferrylabs/ferry/pkg/model"
)

const DefaultMinRelayFee = 1

type Options struct {
	Network     *chaincfg.Params
	AddressType waddrmgr.AddressType
	FeeTier     string
	MinRelayFee int
}

// NewOptions picks sane defaults for the given bitcoin chain. Mainnet pays
// for fast confirmation, the test networks don't have to.
func NewOptions(chain model.Chain) Options {
	opts := Options{
		Network:     chain.Params(),
		AddressType: waddrmgr.WitnessPubKey,
		MinRelayFee: DefaultMinRelayFee,
	}
	switch chain {
	case model.Bitcoin:
		opts.FeeTier = "high"
	case model.BitcoinTestnet:
		opts.FeeTier = "medium"
	default:
		opts.FeeTier = "low"
	}
	return opts
}

func (opts Options) WithNetwork(network *chaincfg.Params) Options {
	opts.Network = network
	return opts
}

func (opts Options) WithFeeTier(feeTier string) Options {
	opts.FeeTier = feeTier
	return opts
}

func (opts Options) WithAddressType(addressType waddrmgr.AddressType) Options {
	opts.AddressType = addressType
	return opts
}

func (opts Options) WithMinRelayFee(min int) Options {
	opts.MinRelayFee = min
	return opts
}
