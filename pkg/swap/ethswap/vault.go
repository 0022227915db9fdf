package ethswap

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// The vault holds every escrow of a single ERC-20 token, keyed by the escrow
// id. Source escrows are created on behalf of the maker with the submitted
// authorization signature, destination escrows pull from the caller directly.
const vaultABI = `[
  {"type":"function","name":"token","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"escrows","stateMutability":"view","inputs":[{"name":"","type":"bytes32"}],"outputs":[{"name":"initiator","type":"address"},{"name":"redeemer","type":"address"},{"name":"amount","type":"uint256"},{"name":"initiatedAt","type":"uint256"},{"name":"expiry","type":"uint256"},{"name":"fulfilled","type":"bool"},{"name":"cancelled","type":"bool"}]},
  {"type":"function","name":"create","stateMutability":"nonpayable","inputs":[{"name":"redeemer","type":"address"},{"name":"expiry","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"secretHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"createFor","stateMutability":"nonpayable","inputs":[{"name":"initiator","type":"address"},{"name":"redeemer","type":"address"},{"name":"expiry","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"secretHash","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"},{"name":"secret","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"cancel","stateMutability":"nonpayable","inputs":[{"name":"id","type":"bytes32"}],"outputs":[]}
]`

const erc20ABI = `[
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// EscrowDetails mirrors the vault's escrow storage slot.
type EscrowDetails struct {
	Initiator   common.Address
	Redeemer    common.Address
	Amount      *big.Int
	InitiatedAt *big.Int
	Expiry      *big.Int
	Fulfilled   bool
	Cancelled   bool
}

type EscrowVault struct {
	contract *bind.BoundContract
}

func NewEscrowVault(addr common.Address, backend bind.ContractBackend) (*EscrowVault, error) {
	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, err
	}
	return &EscrowVault{
		contract: bind.NewBoundContract(addr, parsed, backend, backend, backend),
	}, nil
}

func (v *EscrowVault) Token(opts *bind.CallOpts) (common.Address, error) {
	out := new([]interface{})
	if err := v.contract.Call(opts, out, "token"); err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType((*out)[0], new(common.Address)).(*common.Address), nil
}

func (v *EscrowVault) Escrows(opts *bind.CallOpts, id [32]byte) (EscrowDetails, error) {
	out := new([]interface{})
	if err := v.contract.Call(opts, out, "escrows", id); err != nil {
		return EscrowDetails{}, err
	}
	return EscrowDetails{
		Initiator:   *abi.ConvertType((*out)[0], new(common.Address)).(*common.Address),
		Redeemer:    *abi.ConvertType((*out)[1], new(common.Address)).(*common.Address),
		Amount:      abi.ConvertType((*out)[2], new(big.Int)).(*big.Int),
		InitiatedAt: abi.ConvertType((*out)[3], new(big.Int)).(*big.Int),
		Expiry:      abi.ConvertType((*out)[4], new(big.Int)).(*big.Int),
		Fulfilled:   *abi.ConvertType((*out)[5], new(bool)).(*bool),
		Cancelled:   *abi.ConvertType((*out)[6], new(bool)).(*bool),
	}, nil
}

func (v *EscrowVault) Create(opts *bind.TransactOpts, redeemer common.Address, expiry, amount *big.Int, secretHash [32]byte) (*types.Transaction, error) {
	return v.contract.Transact(opts, "create", redeemer, expiry, amount, secretHash)
}

func (v *EscrowVault) CreateFor(opts *bind.TransactOpts, initiator, redeemer common.Address, expiry, amount *big.Int, secretHash [32]byte, signature []byte) (*types.Transaction, error) {
	return v.contract.Transact(opts, "createFor", initiator, redeemer, expiry, amount, secretHash, signature)
}

func (v *EscrowVault) Withdraw(opts *bind.TransactOpts, id [32]byte, secret []byte) (*types.Transaction, error) {
	return v.contract.Transact(opts, "withdraw", id, secret)
}

func (v *EscrowVault) Cancel(opts *bind.TransactOpts, id [32]byte) (*types.Transaction, error) {
	return v.contract.Transact(opts, "cancel", id)
}

type ERC20 struct {
	contract *bind.BoundContract
}

func NewERC20(addr common.Address, backend bind.ContractBackend) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, err
	}
	return &ERC20{
		contract: bind.NewBoundContract(addr, parsed, backend, backend, backend),
	}, nil
}

func (t *ERC20) BalanceOf(opts *bind.CallOpts, owner common.Address) (*big.Int, error) {
	out := new([]interface{})
	if err := t.contract.Call(opts, out, "balanceOf", owner); err != nil {
		return nil, err
	}
	return abi.ConvertType((*out)[0], new(big.Int)).(*big.Int), nil
}

func (t *ERC20) Allowance(opts *bind.CallOpts, owner, spender common.Address) (*big.Int, error) {
	out := new([]interface{})
	if err := t.contract.Call(opts, out, "allowance", owner, spender); err != nil {
		return nil, err
	}
	return abi.ConvertType((*out)[0], new(big.Int)).(*big.Int), nil
}

func (t *ERC20) TotalSupply(opts *bind.CallOpts) (*big.Int, error) {
	out := new([]interface{})
	if err := t.contract.Call(opts, out, "totalSupply"); err != nil {
		return nil, err
	}
	return abi.ConvertType((*out)[0], new(big.Int)).(*big.Int), nil
}

func (t *ERC20) Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(opts, "approve", spender, amount)
}
