package orchestrator

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/payflow/pkg/allowance"
	"github.com/speedrun-hq/payflow/pkg/metrics"
	"github.com/speedrun-hq/payflow/pkg/models"
	"github.com/speedrun-hq/payflow/pkg/signer"
	"github.com/speedrun-hq/payflow/pkg/txerror"
	"github.com/speedrun-hq/payflow/pkg/watcher"
)

// submitFunc hands a step's transaction to the signing agent
type submitFunc func(onHash func(common.Hash)) (*watcher.Submission, watcher.Probe, error)

// runStep drives one transaction of a session to a resolution and records it.
//
// A confirmed record is not submitted again, and a record whose hash is
// known is watched instead of resubmitted. A submission the signing agent
// has not returned from yet is waited on again rather than replaced. The
// session moves from its current phase to confirming as soon as the hash is
// known; an empty confirming phase keeps the session where it is.
func (o *Orchestrator) runStep(ctx context.Context, s *Session, rec *models.TransactionRecord, confirming Phase, submit submitFunc) (watcher.Outcome, error) {
	submitting := s.Phase()
	toConfirming := func() {
		if confirming != "" {
			s.advanceIf(submitting, confirming)
		}
	}

	cur := s.readRecord(rec)
	if cur.IsConfirmed() {
		o.logger.DebugWithChain(o.cfg.ChainID, "Session %s: %s already confirmed in %s", s.ID, cur.Purpose, cur.Hash.Hex())
		toConfirming()
		return watcher.Outcome{Status: watcher.StatusConfirmed, Hash: cur.Hash}, nil
	}

	prev, prevProbe := s.lastAttempt(rec)
	if !cur.HasHash() && prev != nil {
		// the agent returned after the last run stopped watching
		if hash, ok := prev.Hash(); ok {
			s.updateRecord(rec, func(r *models.TransactionRecord) { r.Hash = hash })
			cur = s.readRecord(rec)
		}
	}

	var (
		sub   *watcher.Submission
		probe watcher.Probe
	)
	switch {
	case cur.HasHash() && cur.Status != models.TxReverted:
		o.logger.InfoWithChain(o.cfg.ChainID, "Session %s: resuming watch of %s %s", s.ID, cur.Purpose, cur.Hash.Hex())
		s.updateRecord(rec, func(r *models.TransactionRecord) { r.Status = models.TxConfirming })
		toConfirming()
		sub = watcher.Resolved(cur.Hash)

	case prev != nil && prev.Pending():
		o.logger.InfoWithChain(o.cfg.ChainID, "Session %s: still waiting for the signing agent on %s", s.ID, cur.Purpose)
		s.updateRecord(rec, func(r *models.TransactionRecord) { r.Status = models.TxSubmitted })
		sub, probe = prev, prevProbe

	default:
		if cur.HasHash() {
			s.updateRecord(rec, func(r *models.TransactionRecord) {
				r.Hash = common.Hash{}
				r.Status = models.TxSubmitted
			})
		}

		gen := s.beginAttempt(rec)
		onHash := func(hash common.Hash) {
			if !s.isCurrentAttempt(rec, gen) {
				o.logger.DebugWithChain(o.cfg.ChainID, "Session %s: ignoring hash %s of a superseded %s", s.ID, hash.Hex(), cur.Purpose)
				return
			}
			s.updateRecord(rec, func(r *models.TransactionRecord) {
				r.Hash = hash
				// a probe may have confirmed the step, or the watch given up, before the agent returned
				if r.Status == models.TxSubmitted {
					r.Status = models.TxConfirming
				}
			})
			toConfirming()
		}

		var err error
		sub, probe, err = submit(onHash)
		if err != nil {
			s.dropRecord(rec)
			return watcher.Outcome{}, err
		}
		s.setAttempt(rec, gen, sub, probe)
	}

	out := o.watcher.Watch(ctx, sub, probe)
	if out.Status != watcher.StatusFailed {
		toConfirming()
	}

	if out.Hash != (common.Hash{}) && (out.Status == watcher.StatusConfirmed || out.Status == watcher.StatusReverted) {
		if n, ok := o.signer.(signer.MinedNotifier); ok {
			n.Mined(out.Hash)
		}
	}
	if out.Receipt != nil {
		metrics.GasUsed.WithLabelValues(string(cur.Purpose)).Observe(float64(out.Receipt.GasUsed))
	}

	switch out.Status {
	case watcher.StatusConfirmed:
		s.updateRecord(rec, func(r *models.TransactionRecord) {
			if out.Hash != (common.Hash{}) {
				r.Hash = out.Hash
			}
			r.Status = models.TxConfirmed
		})
		return out, nil

	case watcher.StatusReverted:
		s.updateRecord(rec, func(r *models.TransactionRecord) { r.Status = models.TxReverted })
		return out, txerror.New(txerror.ContractReverted, "%s transaction reverted", cur.Purpose).WithTx(out.Hash)

	case watcher.StatusAbandoned:
		s.updateRecord(rec, func(r *models.TransactionRecord) { r.Status = models.TxUnknownTimeout })
		return out, txerror.New(txerror.UnknownTimeout, "%s transaction was not confirmed in time", cur.Purpose).WithTx(out.Hash)
	}

	// the session stopped waiting on a transaction that may still be mined
	if ctx.Err() != nil && (out.Hash != (common.Hash{}) || sub.Pending()) {
		s.updateRecord(rec, func(r *models.TransactionRecord) { r.Status = models.TxUnknownTimeout })
		uncertain := txerror.New(txerror.UnknownTimeout, "stopped waiting for %s transaction: %v", cur.Purpose, ctx.Err())
		if out.Hash != (common.Hash{}) {
			uncertain = uncertain.WithTx(out.Hash)
		}
		return out, uncertain
	}

	if out.Hash == (common.Hash{}) {
		s.dropRecord(rec)
	}
	classified := txerror.Classify(out.Err)
	if classified == nil {
		classified = txerror.New(txerror.Unknown, "%s transaction failed", cur.Purpose)
	}
	if out.Hash != (common.Hash{}) {
		classified = classified.WithTx(out.Hash)
	}
	return out, classified
}

// authorize runs an approve step for grant
func (o *Orchestrator) authorize(ctx context.Context, s *Session, rec *models.TransactionRecord, grant models.AuthorizationGrant, confirming Phase) error {
	out, err := o.runStep(ctx, s, rec, confirming, func(onHash func(common.Hash)) (*watcher.Submission, watcher.Probe, error) {
		p, err := o.allowance.Ensure(ctx, grant, rec.Purpose, onHash)
		if err != nil {
			return nil, nil, err
		}
		return p.Submission, p.Probe, nil
	})

	o.logger.DebugWithChain(o.cfg.ChainID, "Session %s: approval of %s for %s %s",
		s.ID, grant.Amount.String(), grant.Spender.Hex(), allowance.Resolve(out))
	return err
}
