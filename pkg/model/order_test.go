package model_test

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ferrylabs/ferry/pkg/model"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func randomHex(n int) string {
	data := make([]byte, n)
	_, err := rand.Read(data)
	Expect(err).Should(BeNil())
	return hex.EncodeToString(data)
}

func validTimelocks() model.Timelocks {
	return model.Timelocks{
		SrcWithdraw: 144,
		SrcCancel:   288,
		DstWithdraw: 72,
		DstCancel:   144,
	}
}

func validEvmPayload() model.EvmPayload {
	return model.EvmPayload{
		Maker:         "0x" + randomHex(20),
		Receiver:      "tb1q0000000000000000000000000000000000000",
		Token:         "0x" + randomHex(20),
		SendAmount:    "1000000000000000000",
		ReceiveAmount: 250000,
		SecretHash:    randomHex(32),
		Timelocks:     validTimelocks(),
	}
}

func validBtcPayload() model.BtcPayload {
	return model.BtcPayload{
		Maker:         "tb1q0000000000000000000000000000000000000",
		Receiver:      "0x" + randomHex(20),
		Token:         "0x" + randomHex(20),
		SendAmount:    250000,
		ReceiveAmount: "1000000000000000000",
		SecretHash:    randomHex(32),
		Timelocks:     validTimelocks(),
	}
}

var _ = Describe("Order status", func() {
	Context("when walking the state machine", func() {
		It("should allow exactly the lifecycle edges", func() {
			all := []model.OrderStatus{
				model.OrderPending,
				model.OrderVerified,
				model.OrderProcessing,
				model.OrderCompleted,
				model.OrderFailed,
				model.OrderCancelled,
			}
			allowed := map[string]bool{
				"pending->verified":      true,
				"pending->processing":    true,
				"pending->cancelled":     true,
				"pending->failed":        true,
				"verified->processing":   true,
				"verified->cancelled":    true,
				"verified->failed":       true,
				"processing->completed":  true,
				"processing->cancelled":  true,
				"processing->failed":     true,
			}

			for _, from := range all {
				for _, to := range all {
					edge := fmt.Sprintf("%v->%v", from, to)
					Expect(model.ValidTransition(from, to)).Should(Equal(allowed[edge]), edge)
				}
			}
		})

		It("should never leave a terminal state", func() {
			for _, terminal := range []model.OrderStatus{model.OrderCompleted, model.OrderFailed, model.OrderCancelled} {
				Expect(terminal.Terminal()).Should(BeTrue())
				for _, to := range []model.OrderStatus{model.OrderPending, model.OrderVerified, model.OrderProcessing, model.OrderCompleted} {
					Expect(model.ValidTransition(terminal, to)).Should(BeFalse())
				}
			}
		})
	})
})

var _ = Describe("Timelocks", func() {
	It("should accept destination windows strictly inside the source windows", func() {
		Expect(validTimelocks().Validate()).Should(Succeed())
	})

	It("should reject zero offsets", func() {
		locks := validTimelocks()
		locks.DstWithdraw = 0
		Expect(locks.Validate()).ShouldNot(Succeed())
	})

	It("should reject a withdraw window closing after the cancel window", func() {
		locks := validTimelocks()
		locks.SrcWithdraw = locks.SrcCancel
		Expect(locks.Validate()).ShouldNot(Succeed())
	})

	It("should reject destination windows at least as long as the source windows", func() {
		locks := validTimelocks()
		locks.DstCancel = locks.SrcCancel
		Expect(locks.Validate()).ShouldNot(Succeed())

		locks = validTimelocks()
		locks.DstWithdraw = locks.SrcWithdraw
		Expect(locks.Validate()).ShouldNot(Succeed())
	})
})

var _ = Describe("Payloads", func() {
	Context("when decoding an evm payload", func() {
		It("should round-trip through json", func() {
			payload := validEvmPayload()
			data, err := json.Marshal(payload)
			Expect(err).Should(BeNil())

			decoded, err := model.DecodeEvmPayload(data)
			Expect(err).Should(BeNil())
			Expect(decoded).Should(Equal(payload))
		})

		It("should reject unknown fields", func() {
			data, err := json.Marshal(validEvmPayload())
			Expect(err).Should(BeNil())
			data = append(data[:len(data)-1], []byte(`,"extra":1}`)...)

			_, err = model.DecodeEvmPayload(data)
			Expect(err).ShouldNot(BeNil())
		})

		It("should reject a malformed maker address", func() {
			payload := validEvmPayload()
			payload.Maker = "not-an-address"
			Expect(payload.Validate()).ShouldNot(Succeed())
		})

		It("should reject a non-positive amount", func() {
			payload := validEvmPayload()
			payload.SendAmount = "0"
			Expect(payload.Validate()).ShouldNot(Succeed())
		})
	})

	Context("when decoding a bitcoin payload", func() {
		It("should round-trip through json", func() {
			payload := validBtcPayload()
			data, err := json.Marshal(payload)
			Expect(err).Should(BeNil())

			decoded, err := model.DecodeBtcPayload(data)
			Expect(err).Should(BeNil())
			Expect(decoded).Should(Equal(payload))
		})

		It("should reject a short secret hash", func() {
			payload := validBtcPayload()
			payload.SecretHash = randomHex(16)
			Expect(payload.Validate()).ShouldNot(Succeed())
		})
	})

	Context("when extracting the secret hash", func() {
		It("should strip the 0x prefix", func() {
			payload := validEvmPayload()
			payload.SecretHash = "0x" + payload.SecretHash
			data, err := json.Marshal(payload)
			Expect(err).Should(BeNil())

			hash, err := model.SecretHashFromPayload(model.EthereumSepolia, data)
			Expect(err).Should(BeNil())
			Expect(hash).Should(Equal(payload.SecretHash[2:]))
		})
	})
})

var _ = Describe("Order submission", func() {
	Context("when the order originates on an evm chain", func() {
		It("should require a 65 byte signature proof", func() {
			data, err := json.Marshal(validEvmPayload())
			Expect(err).Should(BeNil())

			order := model.Order{
				OriginChain: model.EthereumSepolia,
				TargetChain: model.BitcoinTestnet,
				Payload:     data,
				Proof:       "0x" + randomHex(65),
			}
			Expect(order.ValidateSubmission()).Should(Succeed())

			order.Proof = "0x" + randomHex(64)
			Expect(order.ValidateSubmission()).ShouldNot(Succeed())
		})
	})

	Context("when the order originates on a bitcoin chain", func() {
		It("should require a funding tx hash proof", func() {
			data, err := json.Marshal(validBtcPayload())
			Expect(err).Should(BeNil())

			order := model.Order{
				OriginChain: model.BitcoinTestnet,
				TargetChain: model.EthereumSepolia,
				Payload:     data,
				Proof:       randomHex(32),
			}
			Expect(order.ValidateSubmission()).Should(Succeed())

			order.Proof = randomHex(20)
			Expect(order.ValidateSubmission()).ShouldNot(Succeed())
		})
	})

	It("should reject same-ledger swaps", func() {
		data, err := json.Marshal(validEvmPayload())
		Expect(err).Should(BeNil())

		order := model.Order{
			OriginChain: model.EthereumSepolia,
			TargetChain: model.Ethereum,
			Payload:     data,
			Proof:       "0x" + randomHex(65),
		}
		Expect(order.ValidateSubmission()).ShouldNot(Succeed())
	})

	It("should reject an empty payload", func() {
		order := model.Order{
			OriginChain: model.EthereumSepolia,
			Proof:       "0x" + randomHex(65),
		}
		Expect(order.ValidateSubmission()).ShouldNot(Succeed())
	})
})

var _ = Describe("Chains", func() {
	It("should pair each chain with the counterpart on its own network tier", func() {
		Expect(model.EthereumSepolia.Counterpart()).Should(Equal(model.BitcoinTestnet))
		Expect(model.BitcoinTestnet.Counterpart()).Should(Equal(model.EthereumSepolia))
		Expect(model.Ethereum.Counterpart()).Should(Equal(model.Bitcoin))
		Expect(model.EthereumLocalnet.Counterpart()).Should(Equal(model.BitcoinRegtest))
	})

	It("should parse known chain names", func() {
		chain, err := model.ParseChain("bitcoin_regtest")
		Expect(err).Should(BeNil())
		Expect(chain).Should(Equal(model.BitcoinRegtest))

		_, err = model.ParseChain("dogecoin")
		Expect(err).ShouldNot(BeNil())
	})
})
