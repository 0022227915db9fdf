package btcswap

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/catalogfi/blockchain/btc"
)

type Wallet interface {
	Address() btcutil.Address

	Balance(ctx context.Context) (int64, error)

	// Fund sends the escrow amount from the wallet to the escrow address.
	Fund(ctx context.Context, escrow Escrow) (string, error)

	// Claim spends the escrow through the redeem path, paying the target.
	Claim(ctx context.Context, escrow Escrow, secret []byte, target string) (string, error)

	// Reclaim spends the escrow through the refund path once the wait blocks
	// have passed, paying the target.
	Reclaim(ctx context.Context, escrow Escrow, target string) (string, error)
}

type wallet struct {
	mu           *sync.Mutex
	opts         Options
	client       btc.IndexerClient
	feeEstimator btc.FeeEstimator
	key          *btcec.PrivateKey
	address      btcutil.Address
}

func NewWallet(opts Options, client btc.IndexerClient, key *btcec.PrivateKey, estimator btc.FeeEstimator) (Wallet, error) {
	addr, err := btc.PublicKeyAddress(opts.Network, opts.AddressType, key.PubKey())
	if err != nil {
		return nil, fmt.Errorf("fail to parse wallet address, %v", err)
	}

	return &wallet{
		mu:           new(sync.Mutex),
		opts:         opts,
		client:       client,
		feeEstimator: estimator,
		key:          key,
		address:      addr,
	}, nil
}

func (wallet *wallet) Address() btcutil.Address {
	return wallet.address
}

func (wallet *wallet) Balance(ctx context.Context) (int64, error) {
	utxos, err := wallet.client.GetUTXOs(ctx, wallet.address)
	if err != nil {
		return 0, err
	}
	total := int64(0)
	for _, utxo := range utxos {
		total += utxo.Amount
	}
	return total, nil
}

func (wallet *wallet) Fund(ctx context.Context, escrow Escrow) (string, error) {
	if escrow.Network.Name != wallet.opts.Network.Name {
		return "", fmt.Errorf("wrong network")
	}

	wallet.mu.Lock()
	defer wallet.mu.Unlock()

	utxos, err := wallet.client.GetUTXOs(ctx, wallet.address)
	if err != nil {
		return "", err
	}
	feeRate, err := wallet.feeRate()
	if err != nil {
		return "", err
	}

	recipients := []btc.Recipient{
		{
			To:     escrow.Address.EncodeAddress(),
			Amount: escrow.Amount,
		},
	}
	tx, err := btc.BuildTransaction(escrow.Network, feeRate, btc.NewRawInputs(), utxos, btc.P2wpkhUpdater, recipients, wallet.address)
	if err != nil {
		return "", err
	}

	// All inputs are the wallet's own p2wpkh utxos.
	fromScript, err := txscript.PayToAddrScript(wallet.address)
	if err != nil {
		return "", err
	}
	fetcher, err := outputFetcher(utxos, fromScript)
	if err != nil {
		return "", err
	}
	for i, utxo := range tx.TxIn {
		sigHashes := txscript.NewTxSigHashes(tx, fetcher)
		txOut := fetcher.FetchPrevOutput(utxo.PreviousOutPoint)
		witness, err := txscript.WitnessSignature(tx, sigHashes, i, txOut.Value, fromScript, txscript.SigHashAll, wallet.key, true)
		if err != nil {
			return "", err
		}
		tx.TxIn[i].Witness = witness
	}

	if err := wallet.client.SubmitTx(ctx, tx); err != nil {
		return "", err
	}
	return tx.TxHash().String(), nil
}

func (wallet *wallet) Claim(ctx context.Context, escrow Escrow, secret []byte, target string) (string, error) {
	if escrow.Network.Name != wallet.opts.Network.Name {
		return "", fmt.Errorf("wrong network")
	}

	wallet.mu.Lock()
	defer wallet.mu.Unlock()

	utxos, err := wallet.client.GetUTXOs(ctx, escrow.Address)
	if err != nil {
		return "", err
	}
	if len(utxos) == 0 {
		return "", fmt.Errorf("escrow not funded")
	}

	rawInputs := btc.RawInputs{
		VIN:        utxos,
		BaseSize:   0,
		SegwitSize: len(utxos) * btc.RedeemHtlcRedeemSigScriptSize(len(secret)),
	}
	return wallet.spendEscrow(ctx, escrow, rawInputs, utxos, target, 0, secret)
}

func (wallet *wallet) Reclaim(ctx context.Context, escrow Escrow, target string) (string, error) {
	if escrow.Network.Name != wallet.opts.Network.Name {
		return "", fmt.Errorf("wrong network")
	}

	expired, err := escrow.Expired(ctx, wallet.client)
	if err != nil {
		return "", err
	}
	if !expired {
		return "", fmt.Errorf("escrow not expired")
	}

	wallet.mu.Lock()
	defer wallet.mu.Unlock()

	utxos, err := wallet.client.GetUTXOs(ctx, escrow.Address)
	if err != nil {
		return "", err
	}
	rawInputs := btc.RawInputs{
		VIN:        utxos,
		BaseSize:   0,
		SegwitSize: len(utxos) * btc.RedeemHtlcRefundSigScriptSize,
	}
	return wallet.spendEscrow(ctx, escrow, rawInputs, utxos, target, uint32(escrow.WaitBlock), nil)
}

// spendEscrow builds, signs and submits a tx draining the escrow utxos to the
// target. A non-zero sequence selects the refund path of the htlc.
func (wallet *wallet) spendEscrow(ctx context.Context, escrow Escrow, rawInputs btc.RawInputs, utxos btc.UTXOs, target string, sequence uint32, secret []byte) (string, error) {
	recipients := []btc.Recipient{
		{
			To:     target,
			Amount: 0,
		},
	}
	feeRate, err := wallet.feeRate()
	if err != nil {
		return "", err
	}
	tx, err := btc.BuildTransaction(escrow.Network, feeRate, rawInputs, nil, nil, recipients, nil)
	if err != nil {
		return "", err
	}

	fromScript, err := txscript.PayToAddrScript(escrow.Address)
	if err != nil {
		return "", err
	}
	fetcher, err := outputFetcher(utxos, fromScript)
	if err != nil {
		return "", err
	}
	if sequence != 0 {
		for i := range tx.TxIn {
			tx.TxIn[i].Sequence = sequence
		}
	}
	for i, utxo := range tx.TxIn {
		txOut := fetcher.FetchPrevOutput(utxo.PreviousOutPoint)
		sig, err := txscript.RawTxInWitnessSignature(tx, txscript.NewTxSigHashes(tx, fetcher), i, txOut.Value, escrow.Script, txscript.SigHashAll, wallet.key)
		if err != nil {
			return "", err
		}
		tx.TxIn[i].Witness = btc.HtlcWitness(escrow.Script, wallet.key.PubKey().SerializeCompressed(), sig, secret)
	}

	if err := wallet.client.SubmitTx(ctx, tx); err != nil {
		return "", err
	}
	return tx.TxHash().String(), nil
}

func outputFetcher(utxos btc.UTXOs, script []byte) (*txscript.MultiPrevOutFetcher, error) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for _, utxo := range utxos {
		hash, err := chainhash.NewHashFromStr(utxo.TxID)
		if err != nil {
			return nil, err
		}
		fetcher.AddPrevOut(wire.OutPoint{
			Hash:  *hash,
			Index: utxo.Vout,
		}, wire.NewTxOut(utxo.Amount, script))
	}
	return fetcher, nil
}

func (wallet *wallet) feeRate() (int, error) {
	feeRates, err := wallet.feeEstimator.FeeSuggestion()
	if err != nil {
		return 0, err
	}

	rate := feeRates.High
	switch wallet.opts.FeeTier {
	case "minimum":
		rate = feeRates.Minimum
	case "economy":
		rate = feeRates.Economy
	case "low":
		rate = feeRates.Low
	case "medium":
		rate = feeRates.Medium
	case "high":
		rate = feeRates.High
	}

	// The network drops transactions below its relay floor.
	if rate < wallet.opts.MinRelayFee {
		rate = wallet.opts.MinRelayFee
	}
	return rate, nil
}
