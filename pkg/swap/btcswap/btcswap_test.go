package btcswap_test

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcwallet/waddrmgr"

	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/swap"
	"github.com/ferrylabs/ferry/pkg/swap/btcswap"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func randomP2wpkhAddress(network *chaincfg.Params) btcutil.Address {
	key, err := btcec.NewPrivateKey()
	Expect(err).Should(BeNil())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(key.PubKey().SerializeCompressed()), network)
	Expect(err).Should(BeNil())
	return addr
}

func randomSecretHash() []byte {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	Expect(err).Should(BeNil())
	hash := sha256.Sum256(secret)
	return hash[:]
}

var _ = Describe("Btcswap", func() {
	network := &chaincfg.RegressionNetParams

	Context("when building an escrow", func() {
		It("should derive the same script and address for the same inputs", func() {
			initiator, redeemer := randomP2wpkhAddress(network), randomP2wpkhAddress(network)
			secretHash := randomSecretHash()

			first, err := btcswap.NewEscrow(network, initiator, redeemer, 100000, secretHash, 144)
			Expect(err).Should(BeNil())
			second, err := btcswap.NewEscrow(network, initiator, redeemer, 100000, secretHash, 144)
			Expect(err).Should(BeNil())

			Expect(first.Script).Should(Equal(second.Script))
			Expect(first.Address.EncodeAddress()).Should(Equal(second.Address.EncodeAddress()))
		})

		It("should change the address when the hashlock changes", func() {
			initiator, redeemer := randomP2wpkhAddress(network), randomP2wpkhAddress(network)

			first, err := btcswap.NewEscrow(network, initiator, redeemer, 100000, randomSecretHash(), 144)
			Expect(err).Should(BeNil())
			second, err := btcswap.NewEscrow(network, initiator, redeemer, 100000, randomSecretHash(), 144)
			Expect(err).Should(BeNil())

			Expect(first.Address.EncodeAddress()).ShouldNot(Equal(second.Address.EncodeAddress()))
		})
	})

	Context("when mapping an order to an escrow", func() {
		timelocks := model.Timelocks{
			SrcWithdraw: 144,
			SrcCancel:   288,
			DstWithdraw: 72,
			DstCancel:   144,
		}

		It("should build the maker's htlc on the source leg", func() {
			maker, resolver := randomP2wpkhAddress(network), randomP2wpkhAddress(network)
			secretHash := randomSecretHash()
			payload := model.BtcPayload{
				Maker:         maker.EncodeAddress(),
				Receiver:      "0x" + hex.EncodeToString(make([]byte, 20)),
				Token:         "0x" + hex.EncodeToString(make([]byte, 20)),
				SendAmount:    250000,
				ReceiveAmount: "42000",
				SecretHash:    hex.EncodeToString(secretHash),
				Timelocks:     timelocks,
			}
			data, err := json.Marshal(payload)
			Expect(err).Should(BeNil())
			order := model.Order{
				OriginChain: model.BitcoinRegtest,
				TargetChain: model.EthereumLocalnet,
				Payload:     data,
				SecretHash:  hex.EncodeToString(secretHash),
			}

			escrow, err := btcswap.FromOrder(order, swap.RoleSource, network, resolver)
			Expect(err).Should(BeNil())
			Expect(escrow.Initiator.EncodeAddress()).Should(Equal(maker.EncodeAddress()))
			Expect(escrow.Redeemer.EncodeAddress()).Should(Equal(resolver.EncodeAddress()))
			Expect(escrow.Amount).Should(Equal(int64(250000)))
			Expect(escrow.WaitBlock).Should(Equal(int64(288)))
		})

		It("should build the resolver's htlc on the destination leg", func() {
			resolver := randomP2wpkhAddress(network)
			secretHash := randomSecretHash()
			payload := model.EvmPayload{
				Maker:         "0x" + hex.EncodeToString(make([]byte, 20)),
				Receiver:      randomP2wpkhAddress(network).EncodeAddress(),
				Token:         "0x" + hex.EncodeToString(make([]byte, 20)),
				SendAmount:    "42000",
				ReceiveAmount: 250000,
				SecretHash:    hex.EncodeToString(secretHash),
				Timelocks:     timelocks,
			}
			data, err := json.Marshal(payload)
			Expect(err).Should(BeNil())
			order := model.Order{
				OriginChain: model.EthereumLocalnet,
				TargetChain: model.BitcoinRegtest,
				Payload:     data,
				SecretHash:  hex.EncodeToString(secretHash),
			}

			escrow, err := btcswap.FromOrder(order, swap.RoleDestination, network, resolver)
			Expect(err).Should(BeNil())
			Expect(escrow.Initiator.EncodeAddress()).Should(Equal(resolver.EncodeAddress()))
			Expect(escrow.Redeemer.EncodeAddress()).Should(Equal(resolver.EncodeAddress()))
			Expect(escrow.Amount).Should(Equal(int64(250000)))
			Expect(escrow.WaitBlock).Should(Equal(int64(144)))
		})
	})

	Context("when validating escrow references", func() {
		It("should accept a valid address and reject garbage", func() {
			key, err := btcec.NewPrivateKey()
			Expect(err).Should(BeNil())
			wallet, err := btcswap.NewWallet(btcswap.NewOptions(model.BitcoinRegtest), nil, key, nil)
			Expect(err).Should(BeNil())
			adapter, err := btcswap.NewAdapter(model.BitcoinRegtest, nil, wallet)
			Expect(err).Should(BeNil())

			Expect(adapter.ValidateRef(randomP2wpkhAddress(network).EncodeAddress())).Should(Succeed())
			Expect(adapter.ValidateRef("not-an-address")).ShouldNot(Succeed())
		})

		It("should refuse a non-bitcoin chain", func() {
			key, err := btcec.NewPrivateKey()
			Expect(err).Should(BeNil())
			wallet, err := btcswap.NewWallet(btcswap.NewOptions(model.BitcoinRegtest), nil, key, nil)
			Expect(err).Should(BeNil())

			_, err = btcswap.NewAdapter(model.EthereumSepolia, nil, wallet)
			Expect(err).ShouldNot(BeNil())
		})
	})

	Context("when deriving escrow immutables", func() {
		It("should carry the receive address as the destination payout", func() {
			key, err := btcec.NewPrivateKey()
			Expect(err).Should(BeNil())
			wallet, err := btcswap.NewWallet(btcswap.NewOptions(model.BitcoinRegtest), nil, key, nil)
			Expect(err).Should(BeNil())
			adapter, err := btcswap.NewAdapter(model.BitcoinRegtest, nil, wallet)
			Expect(err).Should(BeNil())

			receiver := randomP2wpkhAddress(network)
			secretHash := randomSecretHash()
			payload := model.EvmPayload{
				Maker:         "0x" + hex.EncodeToString(make([]byte, 20)),
				Receiver:      receiver.EncodeAddress(),
				Token:         "0x" + hex.EncodeToString(make([]byte, 20)),
				SendAmount:    "42000",
				ReceiveAmount: 250000,
				SecretHash:    hex.EncodeToString(secretHash),
				Timelocks: model.Timelocks{
					SrcWithdraw: 144,
					SrcCancel:   288,
					DstWithdraw: 72,
					DstCancel:   144,
				},
			}
			data, err := json.Marshal(payload)
			Expect(err).Should(BeNil())
			order := model.Order{
				OriginChain: model.EthereumLocalnet,
				TargetChain: model.BitcoinRegtest,
				Payload:     data,
				SecretHash:  hex.EncodeToString(secretHash),
			}

			escrow, err := adapter.DeriveEscrow(order, swap.RoleDestination)
			Expect(err).Should(BeNil())
			Expect(escrow.Chain).Should(Equal(model.BitcoinRegtest))
			Expect(escrow.Address).ShouldNot(BeEmpty())

			var imm map[string]interface{}
			Expect(json.Unmarshal(escrow.Immutables, &imm)).Should(Succeed())
			Expect(imm["payout"]).Should(Equal(receiver.EncodeAddress()))
		})
	})

	Context("when picking options", func() {
		It("should default to a p2wpkh wallet", func() {
			opts := btcswap.NewOptions(model.BitcoinRegtest)
			Expect(opts.AddressType).Should(Equal(waddrmgr.WitnessPubKey))
			Expect(opts.Network.Name).Should(Equal(chaincfg.RegressionNetParams.Name))
			Expect(opts.FeeTier).Should(Equal("low"))
		})

		It("should pay for fast confirmation on mainnet", func() {
			Expect(btcswap.NewOptions(model.Bitcoin).FeeTier).Should(Equal("high"))
		})
	})
})
