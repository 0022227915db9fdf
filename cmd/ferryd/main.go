package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tyler-smith/go-bip39"

	"github.com/ferrylabs/ferry/pkg/ferryd"
	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/util"
)

func main() {
	cmd := &cobra.Command{
		Use:               "ferryd",
		Short:             "Cross-chain swap relayer and resolver daemon",
		DisableAutoGenTag: true,
		Run: func(c *cobra.Command, args []string) {
			c.HelpFunc()(c, args)
		},
	}
	cmd.AddCommand(Start())
	cmd.AddCommand(Accounts())
	cmd.AddCommand(Mnemonic())

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func Start() *cobra.Command {
	var config ferryd.Config
	var evmChain, btcChain string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the relayer API and the resolver engine",
		Run: func(c *cobra.Command, args []string) {
			if config.Mnemonic == "" {
				config.Mnemonic = os.Getenv("FERRY_MNEMONIC")
			}
			if config.AuthPass == "" {
				config.AuthPass = os.Getenv("FERRY_AUTH_PASS")
			}

			evm, err := model.ParseChain(evmChain)
			if err != nil {
				cobra.CheckErr(err)
			}
			btc, err := model.ParseChain(btcChain)
			if err != nil {
				cobra.CheckErr(err)
			}
			config.EvmChain, config.BtcChain = evm, btc

			ferry, err := ferryd.New(config)
			if err != nil {
				cobra.CheckErr(fmt.Sprintf("failed to initialise, %v", err))
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigs
				color.Yellow("shutting down")
				ferry.Stop()
				os.Exit(0)
			}()

			color.Green("ferryd starting on %v", config.ListenAddr)
			if err := ferry.Start(); err != nil {
				cobra.CheckErr(err)
			}
		},
	}

	cmd.Flags().StringVar(&config.ListenAddr, "listen", "0.0.0.0:8080", "relayer API listen address")
	cmd.Flags().StringVar(&config.DB, "db", "ferry.db", "sqlite path or postgres url")
	cmd.Flags().StringVar(&config.RedisURL, "redis", "", "redis url for the action store")
	cmd.Flags().StringVar(&config.AuthUser, "auth-user", "resolver", "basic auth user for resolver routes")
	cmd.Flags().StringVar(&config.AuthPass, "auth-pass", "", "basic auth password for resolver routes")
	cmd.Flags().StringVar(&evmChain, "evm-chain", string(model.EthereumSepolia), "evm chain name")
	cmd.Flags().StringVar(&config.EvmURL, "evm-url", "", "evm json-rpc endpoint")
	cmd.Flags().StringVar(&config.VaultAddress, "vault", "", "escrow vault contract address")
	cmd.Flags().StringVar(&btcChain, "btc-chain", string(model.BitcoinTestnet), "bitcoin chain name")
	cmd.Flags().StringVar(&config.BtcIndexer, "btc-indexer", "", "electrs indexer endpoint")
	cmd.Flags().StringVar(&config.Mnemonic, "mnemonic", "", "wallet mnemonic")
	cmd.Flags().StringVar(&config.ResolverID, "resolver-id", "", "resolver identity, defaults to the evm address")
	cmd.Flags().StringVar(&config.RelayerURL, "relayer-url", "", "relayer API url for the resolver")
	cmd.Flags().BoolVar(&config.NoResolver, "no-resolver", false, "run the relayer API alone")
	return cmd
}

func Accounts() *cobra.Command {
	var mnemonic string
	var chains []string

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Print the wallet addresses derived from the mnemonic",
		Run: func(c *cobra.Command, args []string) {
			if mnemonic == "" {
				mnemonic = os.Getenv("FERRY_MNEMONIC")
			}
			for _, name := range chains {
				chain, err := model.ParseChain(name)
				if err != nil {
					cobra.CheckErr(err)
				}
				key, err := util.LoadKey(mnemonic, chain)
				if err != nil {
					cobra.CheckErr(fmt.Sprintf("failed to derive key, %v", err))
				}
				addr, err := key.Address(chain)
				if err != nil {
					cobra.CheckErr(fmt.Sprintf("failed to derive address, %v", err))
				}
				color.Cyan("%-20v %v", chain, addr)
			}
		},
	}

	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "wallet mnemonic")
	cmd.Flags().StringSliceVar(&chains, "chains", []string{string(model.EthereumSepolia), string(model.BitcoinTestnet)}, "chains to derive addresses for")
	return cmd
}

func Mnemonic() *cobra.Command {
	return &cobra.Command{
		Use:   "mnemonic",
		Short: "Generate a new wallet mnemonic",
		Run: func(c *cobra.Command, args []string) {
			entropy := make([]byte, 32)
			if _, err := rand.Read(entropy); err != nil {
				cobra.CheckErr(err)
			}
			mnemonic, err := bip39.NewMnemonic(entropy)
			if err != nil {
				cobra.CheckErr(err)
			}
			color.Green("Generating new mnemonic:\n[ %v ]", mnemonic)
		},
	}
}
