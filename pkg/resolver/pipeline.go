package resolver

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/relayer"
	"github.com/ferrylabs/ferry/pkg/rest"
	"github.com/ferrylabs/ferry/pkg/swap"
)

// process drives one order through the full pipeline: resolve intent, deploy
// both escrows, verify, wait for the secret and withdraw both legs. Stages
// run strictly in that order and a stage failure aborts only this order.
func (r *resolver) process(ctx context.Context, order model.Order) error {
	logger := r.logger.With(zap.String("order", order.ID))

	// Stage 1: resolve intent. A 403 means the order belongs to another
	// resolver, which is not an error worth retrying.
	intent, err := r.client.ResolveIntent(order.ID, r.opts.ResolverID)
	if err != nil {
		var reqErr rest.RequestError
		if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusForbidden {
			logger.Debug("order assigned to another resolver")
			return nil
		}
		return err
	}
	order = intent.Order

	srcAdapter, ok := r.adapters[order.OriginChain]
	if !ok {
		return r.fail(order.ID, logger, fmt.Errorf("no adapter for chain %v", order.OriginChain))
	}
	dstAdapter, ok := r.adapters[order.TargetChain]
	if !ok {
		return r.fail(order.ID, logger, fmt.Errorf("no adapter for chain %v", order.TargetChain))
	}

	// Stage 2: deploy the escrows, source always before destination. Nothing
	// has been asked of the maker yet, so a failure here leaks no state.
	srcEscrow, err := r.deploy(ctx, srcAdapter, order, swap.RoleSource, logger)
	if err != nil {
		return r.fail(order.ID, logger, err)
	}
	dstEscrow, err := r.deploy(ctx, dstAdapter, order, swap.RoleDestination, logger)
	if err != nil {
		return r.fail(order.ID, logger, err)
	}

	// Stage 3: have the relayer sanity-check both escrows.
	if order.Status == model.OrderPending {
		if err := r.verify(ctx, order.ID, srcEscrow, dstEscrow, logger); err != nil {
			var failure VerificationFailure
			if errors.As(err, &failure) {
				return r.fail(order.ID, logger, err)
			}
			return err
		}
	}

	// Stage 4: wait for the maker to reveal the secret. A timeout leaves the
	// order untouched so a later run resumes it.
	secret, current, err := r.awaitSecret(ctx, order.ID, logger)
	if err != nil {
		return err
	}

	// A cancel may have landed while we were waiting, never act on a secret
	// for an order that is no longer processing.
	if current.Status != model.OrderProcessing {
		logger.Info("order no longer actionable", zap.String("status", string(current.Status)))
		return nil
	}

	// Stage 5: withdraw, destination leg first so the maker is paid out
	// before we claim the source leg with the now-public secret.
	dstTx, err := r.withdraw(ctx, dstAdapter, current, dstEscrow, swap.ActionWithdrawDst, secret, logger)
	if err != nil {
		return r.fail(order.ID, logger, err)
	}
	srcTx, err := r.withdraw(ctx, srcAdapter, current, srcEscrow, swap.ActionWithdrawSrc, secret, logger)
	if err != nil {
		return r.fail(order.ID, logger, err)
	}

	if err := r.client.Settle(order.ID, relayer.Outcome{
		Success:   true,
		SrcTxHash: srcTx,
		DstTxHash: dstTx,
	}); err != nil {
		return err
	}
	logger.Info("order completed", zap.String("src tx", srcTx), zap.String("dst tx", dstTx))
	return nil
}

// deploy runs one escrow deployment at most once per order. A deployment
// recorded by a previous run is recovered by deriving the escrow again.
func (r *resolver) deploy(ctx context.Context, adapter swap.Adapter, order model.Order, role swap.Role, logger *zap.Logger) (swap.Escrow, error) {
	action := swap.ActionDeploySrc
	if role == swap.RoleDestination {
		action = swap.ActionDeployDst
	}

	recordedTx, done, err := r.actions.CheckAction(action, order.ID)
	if err != nil {
		return swap.Escrow{}, err
	}
	if done {
		logger.Debug("escrow already deployed", zap.String("role", string(role)), zap.String("tx", recordedTx))
		escrow, err := adapter.DeriveEscrow(order, role)
		if err != nil {
			return swap.Escrow{}, err
		}
		escrow.TxHash = recordedTx
		return escrow, nil
	}

	var escrow swap.Escrow
	err = r.withRetry(ctx, adapter.Chain(), string(action), func(callCtx context.Context) error {
		var deployErr error
		if role == swap.RoleSource {
			escrow, deployErr = adapter.DeploySourceEscrow(callCtx, order)
		} else {
			escrow, deployErr = adapter.DeployDestinationEscrow(callCtx, order)
		}
		return deployErr
	})
	if err != nil {
		return swap.Escrow{}, err
	}

	if err := r.actions.RecordAction(action, order.ID, escrow.TxHash); err != nil {
		logger.Error("failed recording action", zap.Error(err))
	}
	logger.Info("escrow deployed",
		zap.String("role", string(role)),
		zap.String("chain", string(adapter.Chain())),
		zap.String("escrow", escrow.Address),
		zap.String("tx", escrow.TxHash))
	return escrow, nil
}

// verify asks the relayer to check both escrows, retrying a bounded number
// of times before giving up on the order.
func (r *resolver) verify(ctx context.Context, orderID string, src, dst swap.Escrow, logger *zap.Logger) error {
	var issues []string
	var lastErr error
	for attempt := 1; attempt <= r.opts.VerifyAttempts; attempt++ {
		result, err := r.client.Verify(orderID, src.Address, dst.Address)
		switch {
		case err != nil:
			lastErr = err
			logger.Error("verification call failed", zap.Int("attempt", attempt), zap.Error(err))
		case result.Verified:
			logger.Info("escrows verified")
			return nil
		default:
			issues = result.Issues
			logger.Info("escrows not verified yet", zap.Int("attempt", attempt), zap.Strings("issues", issues))
		}

		if attempt < r.opts.VerifyAttempts {
			if err := r.sleep(ctx, r.opts.RetryDelay); err != nil {
				return err
			}
		}
	}
	if len(issues) > 0 {
		return VerificationFailure{Issues: issues}
	}
	return lastErr
}

// awaitSecret polls the relayer until the secret shows up, the order leaves
// the game, or the attempt budget runs out.
func (r *resolver) awaitSecret(ctx context.Context, orderID string, logger *zap.Logger) ([]byte, model.Order, error) {
	var current model.Order
	for attempt := 1; attempt <= r.opts.SecretPollAttempts; attempt++ {
		order, err := r.client.Order(orderID)
		if err != nil {
			logger.Error("failed to fetch order while waiting for secret", zap.Error(err))
		} else {
			current = order
			switch {
			case order.Status == model.OrderFailed || order.Status == model.OrderCancelled:
				return nil, order, nil
			case order.Secret != "":
				secret, err := hex.DecodeString(order.Secret)
				if err != nil {
					return nil, order, fmt.Errorf("relayer returned a malformed secret, %v", err)
				}
				return secret, order, nil
			}
		}

		if attempt < r.opts.SecretPollAttempts {
			if err := r.sleep(ctx, r.opts.SecretPollInterval); err != nil {
				return nil, current, err
			}
		}
	}
	return nil, current, TimeoutError{Stage: "acquire-secret"}
}

// withdraw performs one leg's withdrawal at most once per order.
func (r *resolver) withdraw(ctx context.Context, adapter swap.Adapter, order model.Order, escrow swap.Escrow, action swap.Action, secret []byte, logger *zap.Logger) (string, error) {
	recordedTx, done, err := r.actions.CheckAction(action, order.ID)
	if err != nil {
		return "", err
	}
	if done {
		logger.Debug("withdrawal already performed", zap.String("action", string(action)), zap.String("tx", recordedTx))
		return recordedTx, nil
	}

	var txHash string
	err = r.withRetry(ctx, adapter.Chain(), string(action), func(callCtx context.Context) error {
		var withdrawErr error
		txHash, withdrawErr = adapter.Withdraw(callCtx, escrow, secret)
		return withdrawErr
	})
	if err != nil {
		return "", err
	}

	if err := r.actions.RecordAction(action, order.ID, txHash); err != nil {
		logger.Error("failed recording action", zap.Error(err))
	}
	logger.Info("withdrawal submitted",
		zap.String("chain", string(adapter.Chain())),
		zap.String("escrow", escrow.Address),
		zap.String("tx", txHash))
	return txHash, nil
}

// withRetry runs a single-attempt chain call under the engine's retry and
// backoff policy. Withdraw rejections are final and never retried.
func (r *resolver) withRetry(ctx context.Context, chain model.Chain, op string, fn func(context.Context) error) error {
	delay := r.opts.RetryDelay
	var lastErr error
	for attempt := 1; attempt <= r.opts.ChainAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
		lastErr = fn(callCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, swap.ErrWithdrawRejected) {
			return ChainCallError{Chain: chain, Op: op, Err: lastErr}
		}

		if attempt < r.opts.ChainAttempts {
			if err := r.sleep(ctx, delay); err != nil {
				return err
			}
			delay *= 2
		}
	}
	return ChainCallError{Chain: chain, Op: op, Err: lastErr}
}

// fail reports the terminal failure to the relayer and hands the original
// error back for logging.
func (r *resolver) fail(orderID string, logger *zap.Logger, cause error) error {
	if err := r.client.Settle(orderID, relayer.Outcome{Success: false, Error: cause.Error()}); err != nil {
		logger.Error("failed to report order failure", zap.Error(err))
	}
	return cause
}
