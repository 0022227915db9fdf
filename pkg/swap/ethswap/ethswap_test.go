package ethswap_test

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/swap"
	"github.com/ferrylabs/ferry/pkg/swap/ethswap"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func randomAddress() common.Address {
	data := make([]byte, 20)
	_, err := rand.Read(data)
	Expect(err).Should(BeNil())
	return common.BytesToAddress(data)
}

func randomHash() common.Hash {
	data := make([]byte, 32)
	_, err := rand.Read(data)
	Expect(err).Should(BeNil())
	return common.BytesToHash(data)
}

var _ = Describe("Ethswap", func() {
	Context("when deriving escrow ids", func() {
		It("should be deterministic", func() {
			secretHash, initiator := randomHash(), randomAddress()
			Expect(ethswap.EscrowID(secretHash, initiator)).Should(Equal(ethswap.EscrowID(secretHash, initiator)))
		})

		It("should give the two legs distinct ids", func() {
			secretHash := randomHash()
			maker, resolver := randomAddress(), randomAddress()
			src := ethswap.NewEscrow(maker, resolver, secretHash, big.NewInt(1), big.NewInt(288))
			dst := ethswap.NewEscrow(resolver, maker, secretHash, big.NewInt(1), big.NewInt(144))
			Expect(src.ID).ShouldNot(Equal(dst.ID))
		})
	})

	Context("when rendering escrow references", func() {
		It("should round-trip through ParseRef", func() {
			escrow := ethswap.NewEscrow(randomAddress(), randomAddress(), randomHash(), big.NewInt(1), big.NewInt(1))
			id, err := ethswap.ParseRef(escrow.Ref())
			Expect(err).Should(BeNil())
			Expect(id).Should(Equal(escrow.ID))
		})

		It("should reject malformed references", func() {
			_, err := ethswap.ParseRef("0xnothex")
			Expect(err).ShouldNot(BeNil())

			_, err = ethswap.ParseRef("0xabcd")
			Expect(err).ShouldNot(BeNil())
		})
	})

	Context("when mapping an order to an escrow", func() {
		It("should lock the maker's funds for the resolver on the source leg", func() {
			maker, resolver := randomAddress(), randomAddress()
			secretHash := randomHash()
			payload := model.EvmPayload{
				Maker:         maker.Hex(),
				Receiver:      "tb1qreceiver",
				Token:         randomAddress().Hex(),
				SendAmount:    "42000",
				ReceiveAmount: 250000,
				SecretHash:    secretHash.Hex()[2:],
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
				OriginChain: model.EthereumSepolia,
				TargetChain: model.BitcoinTestnet,
				Payload:     data,
				SecretHash:  hex.EncodeToString(secretHash[:]),
			}

			escrow, err := ethswap.FromOrder(order, swap.RoleSource, resolver)
			Expect(err).Should(BeNil())
			Expect(escrow.Initiator).Should(Equal(maker))
			Expect(escrow.Redeemer).Should(Equal(resolver))
			Expect(escrow.Amount.String()).Should(Equal("42000"))
			Expect(escrow.Expiry.Uint64()).Should(Equal(uint64(288)))
			Expect(escrow.SecretHash).Should(Equal(secretHash))
		})

		It("should lock the resolver's funds for the receiver on the destination leg", func() {
			receiver, resolver := randomAddress(), randomAddress()
			secretHash := randomHash()
			payload := model.BtcPayload{
				Maker:         "tb1qmaker",
				Receiver:      receiver.Hex(),
				Token:         randomAddress().Hex(),
				SendAmount:    250000,
				ReceiveAmount: "42000",
				SecretHash:    secretHash.Hex()[2:],
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
				OriginChain: model.BitcoinTestnet,
				TargetChain: model.EthereumSepolia,
				Payload:     data,
				SecretHash:  hex.EncodeToString(secretHash[:]),
			}

			escrow, err := ethswap.FromOrder(order, swap.RoleDestination, resolver)
			Expect(err).Should(BeNil())
			Expect(escrow.Initiator).Should(Equal(resolver))
			Expect(escrow.Redeemer).Should(Equal(receiver))
			Expect(escrow.Amount.String()).Should(Equal("42000"))
			Expect(escrow.Expiry.Uint64()).Should(Equal(uint64(144)))
		})
	})

	Context("when building options", func() {
		It("should carry the chain id of the chain", func() {
			opts := ethswap.NewOptions(model.EthereumSepolia, randomAddress())
			Expect(opts.ChainID.Uint64()).Should(Equal(uint64(11155111)))
		})
	})
})
