package ethswap

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

type Wallet interface {

	// Address returns the address of the wallet
	Address() common.Address

	// Client returns the blockchain client.
	Client() *ethclient.Client

	// Balance returns the ETH balance of the wallet address
	Balance(ctx context.Context, pending bool) (*big.Int, error)

	// TokenBalance returns the token balance of the wallet address. Token is assumed an ERC-20 token and retrieved from
	// the vault contract.
	TokenBalance(ctx context.Context, pending bool) (*big.Int, error)

	// Details reads the escrow's storage slot from the vault.
	Details(ctx context.Context, id [32]byte) (EscrowDetails, error)

	// Create a destination escrow funded by the wallet itself.
	Create(ctx context.Context, escrow Escrow) (common.Hash, error)

	// CreateFor deploys a source escrow funded by the maker, authorized by the
	// maker's signature over the order payload.
	CreateFor(ctx context.Context, escrow Escrow, signature []byte) (common.Hash, error)

	// Withdraw the escrowed funds to the escrow's redeemer with the secret.
	Withdraw(ctx context.Context, escrow Escrow, secret []byte) (common.Hash, error)

	// Cancel the escrow, returning the funds to the initiator.
	Cancel(ctx context.Context, escrow Escrow) (common.Hash, error)
}

type wallet struct {
	options Options
	key     *ecdsa.PrivateKey
	client  *ethclient.Client

	mu    *sync.Mutex
	addr  common.Address
	vault *EscrowVault
	token *ERC20
	nonce uint64
}

func NewWallet(options Options, key *ecdsa.PrivateKey, client *ethclient.Client) (Wallet, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	callOpts := &bind.CallOpts{Context: ctx}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	// Make sure the chain ID matches our expectation, so we know we are on the right chain.
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if options.ChainID.Cmp(chainID) != 0 {
		return nil, fmt.Errorf("wrong chain ID, expect %v, got %v", options.ChainID, chainID)
	}

	// Get the token contract address from the vault and initialise the bindings.
	vault, err := NewEscrowVault(options.VaultAddr, client)
	if err != nil {
		return nil, err
	}
	tokenAddr, err := vault.Token(callOpts)
	if err != nil {
		return nil, err
	}
	erc20, err := NewERC20(tokenAddr, client)
	if err != nil {
		return nil, err
	}

	wal := &wallet{
		options: options,
		key:     key,
		client:  client,

		mu:    new(sync.Mutex),
		addr:  addr,
		vault: vault,
		token: erc20,
	}

	// Get the pending nonce, and we'll manually manage the nonce with the wallet.
	wal.nonce, err = client.PendingNonceAt(ctx, addr)
	if err != nil {
		return nil, err
	}

	if err := wal.allowanceCheck(); err != nil {
		return nil, err
	}

	return wal, nil
}

func (wallet *wallet) Address() common.Address {
	return wallet.addr
}

func (wallet *wallet) Client() *ethclient.Client {
	return wallet.client
}

func (wallet *wallet) Balance(ctx context.Context, pending bool) (*big.Int, error) {
	if pending {
		return wallet.client.PendingBalanceAt(ctx, wallet.addr)
	}
	return wallet.client.BalanceAt(ctx, wallet.addr, nil)
}

func (wallet *wallet) TokenBalance(ctx context.Context, pending bool) (*big.Int, error) {
	callOpts := &bind.CallOpts{
		Pending: pending,
		Context: ctx,
	}
	return wallet.token.BalanceOf(callOpts, wallet.addr)
}

func (wallet *wallet) Details(ctx context.Context, id [32]byte) (EscrowDetails, error) {
	return wallet.vault.Escrows(&bind.CallOpts{Context: ctx}, id)
}

func (wallet *wallet) Create(ctx context.Context, escrow Escrow) (common.Hash, error) {
	wallet.mu.Lock()
	defer wallet.mu.Unlock()

	return wallet.send(ctx, "create", func(transactor *bind.TransactOpts) (common.Hash, error) {
		tx, err := wallet.vault.Create(transactor, escrow.Redeemer, escrow.Expiry, escrow.Amount, escrow.SecretHash)
		if err != nil {
			return common.Hash{}, err
		}
		return tx.Hash(), nil
	})
}

func (wallet *wallet) CreateFor(ctx context.Context, escrow Escrow, signature []byte) (common.Hash, error) {
	wallet.mu.Lock()
	defer wallet.mu.Unlock()

	return wallet.send(ctx, "createFor", func(transactor *bind.TransactOpts) (common.Hash, error) {
		tx, err := wallet.vault.CreateFor(transactor, escrow.Initiator, escrow.Redeemer, escrow.Expiry, escrow.Amount, escrow.SecretHash, signature)
		if err != nil {
			return common.Hash{}, err
		}
		return tx.Hash(), nil
	})
}

func (wallet *wallet) Withdraw(ctx context.Context, escrow Escrow, secret []byte) (common.Hash, error) {
	wallet.mu.Lock()
	defer wallet.mu.Unlock()

	return wallet.send(ctx, "withdraw", func(transactor *bind.TransactOpts) (common.Hash, error) {
		tx, err := wallet.vault.Withdraw(transactor, escrow.ID, secret)
		if err != nil {
			return common.Hash{}, err
		}
		return tx.Hash(), nil
	})
}

func (wallet *wallet) Cancel(ctx context.Context, escrow Escrow) (common.Hash, error) {
	wallet.mu.Lock()
	defer wallet.mu.Unlock()

	return wallet.send(ctx, "cancel", func(transactor *bind.TransactOpts) (common.Hash, error) {
		tx, err := wallet.vault.Cancel(transactor, escrow.ID)
		if err != nil {
			return common.Hash{}, err
		}
		return tx.Hash(), nil
	})
}

// send wraps a vault transaction with the wallet's nonce bookkeeping. Callers
// must hold the mutex.
func (wallet *wallet) send(ctx context.Context, op string, fn func(*bind.TransactOpts) (common.Hash, error)) (common.Hash, error) {
	transactor, err := wallet.transactor(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	hash, err := fn(transactor)
	if err != nil {
		if strings.Contains(err.Error(), "nonce too low") {
			if inErr := wallet.calibrateNonce(); inErr != nil {
				return common.Hash{}, fmt.Errorf("%v failed = %v, reset nonce failed = %v", op, err, inErr)
			}
		}
		return common.Hash{}, err
	}
	wallet.nonce++
	return hash, nil
}

func (wallet *wallet) allowanceCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	callOpts := &bind.CallOpts{Context: ctx}

	// Check we have enough allowance for the vault
	allowance, err := wallet.token.Allowance(callOpts, wallet.addr, wallet.options.VaultAddr)
	if err != nil {
		return err
	}
	totalSupply, err := wallet.token.TotalSupply(callOpts)
	if err != nil {
		return err
	}

	// Do a large approval when the allowance is low, we should only need to do this once.
	if allowance.Cmp(totalSupply) == -1 {
		transactor, err := wallet.transactor(ctx)
		if err != nil {
			return err
		}

		// Approve the max allowance
		data := make([]byte, 32)
		for i := 0; i < 32; i++ {
			data[i] = 0xff
		}
		max := big.NewInt(0).SetBytes(data)
		tx, err := wallet.token.Approve(transactor, wallet.options.VaultAddr, max)
		if err != nil {
			return err
		}
		wallet.nonce++

		receipt, err := bind.WaitMined(ctx, wallet.client, tx)
		if err != nil {
			return err
		}

		// Check if transaction has been reverted
		if receipt.Status == 0 {
			return fmt.Errorf("tx reverted, hash = %v", receipt.TxHash.Hex())
		}
	}
	return nil
}

func (wallet *wallet) calibrateNonce() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	nonce, err := wallet.client.PendingNonceAt(ctx, wallet.addr)
	if err != nil {
		return err
	}
	wallet.nonce = nonce
	return nil
}

func (wallet *wallet) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	transactor, err := bind.NewKeyedTransactorWithChainID(wallet.key, wallet.options.ChainID)
	if err != nil {
		return nil, err
	}
	transactor.Nonce = big.NewInt(int64(wallet.nonce))
	transactor.Context = ctx
	return transactor, nil
}
