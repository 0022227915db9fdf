package ferryd

import (
	"fmt"
	"strings"
	"time"

	"github.com/catalogfi/blockchain/btc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/relayer"
	"github.com/ferrylabs/ferry/pkg/resolver"
	"github.com/ferrylabs/ferry/pkg/rest"
	"github.com/ferrylabs/ferry/pkg/store"
	"github.com/ferrylabs/ferry/pkg/swap"
	"github.com/ferrylabs/ferry/pkg/swap/btcswap"
	"github.com/ferrylabs/ferry/pkg/swap/ethswap"
	"github.com/ferrylabs/ferry/pkg/util"
)

type Config struct {
	// ListenAddr is where the relayer API serves.
	ListenAddr string

	// DB is either a sqlite file path or a postgres url.
	DB string

	// RedisURL enables the persistent action store. Empty falls back to the
	// in-memory store, which only suits local runs.
	RedisURL string

	// AuthUser and AuthPass protect the resolver-facing routes.
	AuthUser string
	AuthPass string

	EvmChain     model.Chain
	EvmURL       string
	VaultAddress string

	BtcChain   model.Chain
	BtcIndexer string

	// Mnemonic derives the per-chain signing keys.
	Mnemonic string

	// ResolverID defaults to the evm wallet address.
	ResolverID string

	// RelayerURL is where the resolver reaches the relayer API. Empty means
	// the local listen address.
	RelayerURL string

	// NoResolver runs the relayer API alone.
	NoResolver bool
}

// Ferryd is the relayer API and the resolver engine wired together in one
// process.
type Ferryd struct {
	config   Config
	logger   *zap.Logger
	server   *rest.Server
	resolver resolver.Resolver
}

func New(config Config) (*Ferryd, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	// Storage
	var dialector gorm.Dialector
	if strings.HasPrefix(config.DB, "postgres://") {
		dialector = postgres.Open(config.DB)
	} else {
		dialector = sqlite.Open(config.DB)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	storage, err := store.New(db)
	if err != nil {
		return nil, err
	}

	// Keys
	btcKey, err := util.LoadKey(config.Mnemonic, config.BtcChain)
	if err != nil {
		return nil, err
	}
	evmKey, err := util.LoadKey(config.Mnemonic, config.EvmChain)
	if err != nil {
		return nil, err
	}
	ecdsaKey, err := evmKey.ECDSA()
	if err != nil {
		return nil, err
	}

	// Bitcoin wallet and adapter
	indexer := btc.NewElectrsIndexerClient(logger, config.BtcIndexer, btc.DefaultRetryInterval)
	var estimator btc.FeeEstimator
	switch config.BtcChain {
	case model.Bitcoin, model.BitcoinTestnet:
		estimator = btc.NewBlockstreamFeeEstimator(config.BtcChain.Params(), config.BtcIndexer, 20*time.Second)
	default:
		estimator = btc.NewFixFeeEstimator(2)
	}
	btcWallet, err := btcswap.NewWallet(btcswap.NewOptions(config.BtcChain), indexer, btcKey.BtcKey(), estimator)
	if err != nil {
		return nil, err
	}
	btcAdapter, err := btcswap.NewAdapter(config.BtcChain, indexer, btcWallet)
	if err != nil {
		return nil, err
	}

	// Evm wallet and adapter
	ethClient, err := ethclient.Dial(config.EvmURL)
	if err != nil {
		return nil, err
	}
	vaultAddr := common.HexToAddress(config.VaultAddress)
	ethWallet, err := ethswap.NewWallet(ethswap.NewOptions(config.EvmChain, vaultAddr), ecdsaKey, ethClient)
	if err != nil {
		return nil, err
	}
	ethAdapter, err := ethswap.NewAdapter(config.EvmChain, ethWallet)
	if err != nil {
		return nil, err
	}

	adapters := map[model.Chain]swap.Adapter{
		config.BtcChain: btcAdapter,
		config.EvmChain: ethAdapter,
	}

	// Relayer and its API
	relay := relayer.New(relayer.DefaultOptions(), storage, adapters, logger)
	server := rest.NewServer(relay, logger, config.AuthUser, config.AuthPass)

	ferry := &Ferryd{
		config: config,
		logger: logger,
		server: server,
	}
	if config.NoResolver {
		return ferry, nil
	}

	// Resolver engine
	resolverID := config.ResolverID
	if resolverID == "" {
		resolverID = crypto.PubkeyToAddress(ecdsaKey.PublicKey).Hex()
	}
	relayerURL := config.RelayerURL
	if relayerURL == "" {
		relayerURL = fmt.Sprintf("http://%v", config.ListenAddr)
	}
	client := rest.NewClient(relayerURL, config.AuthUser, config.AuthPass)

	var actions resolver.Store
	if config.RedisURL != "" {
		actions, err = resolver.NewRedisStore(config.RedisURL)
		if err != nil {
			return nil, err
		}
	} else {
		logger.Warn("no redis url, using the in-memory action store")
		actions = resolver.NewInMemStore()
	}

	engine, err := resolver.New(resolver.DefaultOptions(resolverID), client, adapters, actions, logger)
	if err != nil {
		return nil, err
	}
	ferry.resolver = engine
	return ferry, nil
}

// Start brings the resolver up and serves the relayer API. It blocks until
// the server exits.
func (f *Ferryd) Start() error {
	if f.resolver != nil {
		if err := f.resolver.Start(); err != nil {
			return err
		}
	}
	f.logger.Info("relayer API listening", zap.String("addr", f.config.ListenAddr))
	return f.server.Run(f.config.ListenAddr)
}

func (f *Ferryd) Stop() {
	if f.resolver != nil {
		f.resolver.Stop()
	}
	_ = f.logger.Sync()
}
