package util_test

import (
	"crypto/rand"
	"strings"

	"github.com/tyler-smith/go-bip39"

	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/util"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newMnemonic() string {
	entropy := make([]byte, 32)
	_, err := rand.Read(entropy)
	Expect(err).Should(BeNil())
	mnemonic, err := bip39.NewMnemonic(entropy)
	Expect(err).Should(BeNil())
	return mnemonic
}

var _ = Describe("Keys", func() {
	Context("when deriving keys from a mnemonic", func() {
		It("should be deterministic", func() {
			mnemonic := newMnemonic()

			first, err := util.LoadKey(mnemonic, model.Ethereum)
			Expect(err).Should(BeNil())
			second, err := util.LoadKey(mnemonic, model.Ethereum)
			Expect(err).Should(BeNil())

			addr1, err := first.EvmAddress()
			Expect(err).Should(BeNil())
			addr2, err := second.EvmAddress()
			Expect(err).Should(BeNil())
			Expect(addr1).Should(Equal(addr2))
		})

		It("should derive different keys per chain family", func() {
			mnemonic := newMnemonic()

			evmKey, err := util.LoadKey(mnemonic, model.Ethereum)
			Expect(err).Should(BeNil())
			btcKey, err := util.LoadKey(mnemonic, model.Bitcoin)
			Expect(err).Should(BeNil())
			testnetKey, err := util.LoadKey(mnemonic, model.BitcoinTestnet)
			Expect(err).Should(BeNil())

			Expect(evmKey.BtcKey().Serialize()).ShouldNot(Equal(btcKey.BtcKey().Serialize()))
			Expect(btcKey.BtcKey().Serialize()).ShouldNot(Equal(testnetKey.BtcKey().Serialize()))
		})

		It("should render addresses in the chain's format", func() {
			mnemonic := newMnemonic()

			evmKey, err := util.LoadKey(mnemonic, model.EthereumSepolia)
			Expect(err).Should(BeNil())
			evmAddr, err := evmKey.Address(model.EthereumSepolia)
			Expect(err).Should(BeNil())
			Expect(strings.HasPrefix(evmAddr, "0x")).Should(BeTrue())
			Expect(util.ValidateAddress(model.EthereumSepolia, evmAddr)).Should(Succeed())

			btcKey, err := util.LoadKey(mnemonic, model.BitcoinRegtest)
			Expect(err).Should(BeNil())
			btcAddr, err := btcKey.Address(model.BitcoinRegtest)
			Expect(err).Should(BeNil())
			Expect(util.ValidateAddress(model.BitcoinRegtest, btcAddr)).Should(Succeed())
		})

		It("should reject a bad mnemonic", func() {
			_, err := util.LoadKey("not a mnemonic", model.Ethereum)
			Expect(err).ShouldNot(BeNil())
		})
	})

	Context("when validating addresses", func() {
		It("should reject cross-format addresses", func() {
			Expect(util.ValidateAddress(model.Ethereum, "tb1q0000")).ShouldNot(Succeed())
			Expect(util.ValidateAddress(model.Bitcoin, "0x0000000000000000000000000000000000000000")).ShouldNot(Succeed())
		})
	})
})
