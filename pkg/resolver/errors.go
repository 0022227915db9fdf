package resolver

import (
	"fmt"
	"strings"

	"github.com/ferrylabs/ferry/pkg/model"
)

// ChainCallError is a failed or reverted adapter call. Retryable with backoff
// until the attempt budget runs out, then the order fails.
type ChainCallError struct {
	Chain model.Chain
	Op    string
	Err   error
}

func (e ChainCallError) Error() string {
	return fmt.Sprintf("%v call on %v failed, %v", e.Op, e.Chain, e.Err)
}

func (e ChainCallError) Unwrap() error {
	return e.Err
}

// TimeoutError means a stage ran out of its attempt budget, such as a secret
// that never arrived. The order is left in its last good state so a later run
// can resume it.
type TimeoutError struct {
	Stage string
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("stage %v exceeded its attempt budget", e.Stage)
}

// VerificationFailure means the escrow probes kept reporting issues after the
// bounded retries.
type VerificationFailure struct {
	Issues []string
}

func (e VerificationFailure) Error() string {
	return fmt.Sprintf("escrow verification failed, %v", strings.Join(e.Issues, "; "))
}
