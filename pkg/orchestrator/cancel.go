package orchestrator

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/payflow/pkg/chainclient"
	"github.com/speedrun-hq/payflow/pkg/contracts"
	"github.com/speedrun-hq/payflow/pkg/models"
	"github.com/speedrun-hq/payflow/pkg/persistence"
	"github.com/speedrun-hq/payflow/pkg/signer"
	"github.com/speedrun-hq/payflow/pkg/txerror"
	"github.com/speedrun-hq/payflow/pkg/watcher"
)

// runCancel checks the target can be cancelled by the account and submits the cancellation
func (o *Orchestrator) runCancel(ctx context.Context, s *Session) error {
	target := common.HexToAddress(s.Intent.Target)

	if err := s.transition(PhaseCheckingPreconditions); err != nil {
		return err
	}
	s.setProgress(1, "Checking %s can be cancelled", target.Hex())

	// a broadcast cancellation already passed the checks, and they would fail once it is mined
	prev, ok := s.findRecord(models.PurposeCancel, 0)
	if !ok || !prev.HasHash() || len(s.getContracts()) == 0 {
		ctype, err := o.checkCancel(ctx, s.getAccount(), target, s.Intent.ContractType)
		if err != nil {
			return err
		}
		s.setContracts([]*models.ContractInstance{{
			Address:     target,
			Type:        ctype,
			Payer:       s.getAccount(),
			Cancellable: true,
			State:       models.StateActive,
		}})
	}

	if err := s.transition(PhaseCancelling); err != nil {
		return err
	}
	s.setProgress(1, "Cancel payment %s", target.Hex())
	rec := s.record(models.PurposeCancel, 0, target, nil)
	_, err := o.runStep(ctx, s, rec, PhaseConfirmingCancellation, func(onHash func(common.Hash)) (*watcher.Submission, watcher.Probe, error) {
		data, err := contracts.FuncCancel.EncodeArgs()
		if err != nil {
			return nil, nil, err
		}
		req := signer.TxRequest{To: target, Data: data, Purpose: models.PurposeCancel}
		probe := func(ctx context.Context) (bool, error) {
			return chainclient.ReadBool(ctx, o.ledger, target, contracts.FieldCancelled)
		}
		return watcher.Submit(ctx, o.signer, req, onHash), probe, nil
	})
	if err != nil {
		return txerror.Classify(err).WithAddress(target)
	}

	if err := s.cancelContracts(); err != nil {
		return err
	}

	if !s.allConfirmed(1) {
		return txerror.New(txerror.Unknown, "cancellation of %s is not confirmed", target.Hex())
	}

	if err := s.transition(PhasePersisting); err != nil {
		return err
	}
	s.setProgress(1, "Recording the cancellation")
	o.persist(ctx, s, persistence.Outcome{
		Intent:    s.Intent,
		ChainID:   o.cfg.ChainID,
		Contracts: s.getContracts(),
		TxHash:    s.readRecord(rec).Hash,
	})
	return nil
}

// checkCancel verifies, without submitting anything, that account may
// cancel target now. It returns the detected contract type.
func (o *Orchestrator) checkCancel(ctx context.Context, account, target common.Address, ctype models.ContractType) (models.ContractType, error) {
	fail := func(kind txerror.Kind, format string, args ...interface{}) error {
		return txerror.New(kind, format, args...).WithAddress(target)
	}
	readErr := func(err error) error {
		return txerror.Classify(err).WithAddress(target)
	}

	if target == o.cfg.FactoryAddress {
		return ctype, fail(txerror.TargetIsFactory, "%s is the payment factory", target.Hex())
	}

	code, err := o.ledger.GetBytecode(ctx, target)
	if err != nil {
		return ctype, readErr(err)
	}
	if len(code) == 0 {
		return ctype, fail(txerror.NotAContract, "no code at %s", target.Hex())
	}

	if ctype == models.ContractUnknown {
		ctype, err = o.detectType(ctx, target)
		if err != nil {
			return ctype, err
		}
	}

	cancelled, err := chainclient.ReadBool(ctx, o.ledger, target, contracts.FieldCancelled)
	if err != nil {
		return ctype, readErr(err)
	}
	if cancelled {
		return ctype, fail(txerror.AlreadyCancelled, "%s is already cancelled", target.Hex())
	}

	payer, err := chainclient.ReadAddress(ctx, o.ledger, target, contracts.FieldPayer)
	if err != nil {
		return ctype, readErr(err)
	}
	if payer != account {
		return ctype, fail(txerror.NotOwner, "%s is paid by %s, not %s", target.Hex(), payer.Hex(), account.Hex())
	}

	cancellable, err := chainclient.ReadBool(ctx, o.ledger, target, contracts.FieldCancellable)
	if err != nil {
		return ctype, readErr(err)
	}
	if !cancellable {
		return ctype, fail(txerror.NotCancellable, "%s was created non-cancellable", target.Hex())
	}

	switch ctype {
	case models.ContractScheduled:
		released, err := chainclient.ReadBool(ctx, o.ledger, target, contracts.FieldReleased)
		if err != nil {
			return ctype, readErr(err)
		}
		if released {
			return ctype, fail(txerror.AlreadyExecuted, "%s was already released", target.Hex())
		}
		releaseTime, err := chainclient.ReadUint(ctx, o.ledger, target, contracts.FieldReleaseTime)
		if err != nil {
			return ctype, readErr(err)
		}
		if releaseTime.Int64() <= o.now().Unix() {
			return ctype, fail(txerror.CancelWindowPassed, "%s release time %d has passed", target.Hex(), releaseTime.Int64())
		}

	case models.ContractRecurring:
		remaining, err := chainclient.ReadUint(ctx, o.ledger, target, contracts.FieldMonthsRemaining)
		if err != nil {
			return ctype, readErr(err)
		}
		if remaining.Sign() == 0 {
			return ctype, fail(txerror.AlreadyExecuted, "%s has no installments left", target.Hex())
		}
	}
	return ctype, nil
}

// detectType tells scheduled and recurring contracts apart by the views they answer
func (o *Orchestrator) detectType(ctx context.Context, target common.Address) (models.ContractType, error) {
	probes := []struct {
		field string
		ctype models.ContractType
	}{
		{contracts.FieldReleaseTime, models.ContractScheduled},
		{contracts.FieldMonthsRemaining, models.ContractRecurring},
	}
	for _, p := range probes {
		_, err := chainclient.ReadUint(ctx, o.ledger, target, p.field)
		if err == nil {
			return p.ctype, nil
		}
		if kind := txerror.Classify(err).Kind; kind == txerror.NetworkOrRPC {
			return models.ContractUnknown, txerror.Classify(err).WithAddress(target)
		}
	}
	return models.ContractUnknown, txerror.New(txerror.NotAContract, "%s is not a cancellable payment contract", target.Hex()).
		WithAddress(target)
}
