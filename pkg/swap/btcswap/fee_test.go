package btcswap

import (
	"github.com/catalogfi/blockchain/btc"

	"github.com/ferrylabs/ferry/pkg/model"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Fee rates", func() {
	Context("when the estimator suggests less than the relay floor", func() {
		It("should pay at least the minimum relay fee", func() {
			opts := NewOptions(model.BitcoinRegtest).WithFeeTier("low").WithMinRelayFee(5)
			w := &wallet{opts: opts, feeEstimator: btc.NewFixFeeEstimator(1)}

			rate, err := w.feeRate()
			Expect(err).Should(BeNil())
			Expect(rate).Should(Equal(5))
		})
	})

	Context("when the estimator clears the relay floor", func() {
		It("should keep the suggested rate", func() {
			opts := NewOptions(model.BitcoinRegtest).WithFeeTier("high").WithMinRelayFee(2)
			w := &wallet{opts: opts, feeEstimator: btc.NewFixFeeEstimator(10)}

			rate, err := w.feeRate()
			Expect(err).Should(BeNil())
			Expect(rate).Should(Equal(10))
		})
	})
})
