package watcher

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/payflow/pkg/signer"
)

// Submission is a transaction request handed to the signing agent. The
// agent may take arbitrarily long to return the hash, or never return it.
type Submission struct {
	done chan struct{}
	hash common.Hash
	err  error
}

// Submit hands req to the signing agent in the background. onHash, when
// not nil, is called once the agent returns a hash.
func Submit(ctx context.Context, s signer.Signer, req signer.TxRequest, onHash func(common.Hash)) *Submission {
	sub := &Submission{done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		sub.hash, sub.err = s.Submit(ctx, req)
		if sub.err == nil && onHash != nil {
			onHash(sub.hash)
		}
	}()
	return sub
}

// Resolved returns a submission for a transaction that was already broadcast
func Resolved(hash common.Hash) *Submission {
	sub := &Submission{done: make(chan struct{}), hash: hash}
	close(sub.done)
	return sub
}

// Done is closed when the signing agent returned
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Hash returns the transaction hash if the signing agent already returned one
func (s *Submission) Hash() (common.Hash, bool) {
	select {
	case <-s.done:
		return s.hash, s.err == nil
	default:
		return common.Hash{}, false
	}
}

// Pending reports whether the signing agent has not returned yet
func (s *Submission) Pending() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Result blocks until the signing agent returns or ctx is done
func (s *Submission) Result(ctx context.Context) (common.Hash, error) {
	select {
	case <-s.done:
		return s.hash, s.err
	case <-ctx.Done():
		return common.Hash{}, ctx.Err()
	}
}
