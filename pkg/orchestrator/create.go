package orchestrator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/speedrun-hq/payflow/pkg/models"
	"github.com/speedrun-hq/payflow/pkg/persistence"
	"github.com/speedrun-hq/payflow/pkg/signer"
	"github.com/speedrun-hq/payflow/pkg/txerror"
	"github.com/speedrun-hq/payflow/pkg/watcher"
)

// runCreate authorizes the factory, creates the payment contracts and, for
// recurring payments, authorizes every created contract for its schedule
func (o *Orchestrator) runCreate(ctx context.Context, s *Session) error {
	account := s.getAccount()
	factory := o.cfg.FactoryAddress

	decimals, err := o.tokenDecimals(ctx, s.token)
	if err != nil {
		return err
	}
	plan, err := o.planCreate(ctx, s.Intent, account, s.token, decimals)
	if err != nil {
		return err
	}

	// step 1: allowance for the factory
	if err := s.transition(PhaseApprovingFactory); err != nil {
		return err
	}
	s.setProgress(1, "Approve %s for the payment factory", plan.factoryApproval.String())
	rec := s.record(models.PurposeApproveFactory, 0, s.token, plan.factoryApproval)
	grant := models.AuthorizationGrant{Owner: account, Spender: factory, Token: s.token, Amount: plan.factoryApproval}
	if err := o.authorize(ctx, s, rec, grant, ""); err != nil {
		return err
	}

	// step 2: creation
	if err := s.transition(PhaseCreating); err != nil {
		return err
	}
	s.setProgress(2, "Create the %s payment", s.Intent.Kind)
	rec = s.record(models.PurposeCreate, 0, factory, nil)
	out, err := o.runStep(ctx, s, rec, PhaseConfirmingCreation, func(onHash func(common.Hash)) (*watcher.Submission, watcher.Probe, error) {
		req := signer.TxRequest{To: factory, Data: plan.createData, Purpose: models.PurposeCreate}
		return watcher.Submit(ctx, o.signer, req, onHash), nil, nil
	})
	if err != nil {
		return err
	}
	createHash := s.readRecord(rec).Hash

	if err := s.transition(PhaseExtractingAddress); err != nil {
		return err
	}
	contracts := s.getContracts()
	if len(contracts) == 0 {
		contracts, err = o.extractContracts(ctx, s, plan, out.Receipt, createHash)
		if err != nil {
			return err
		}
		s.setContracts(contracts)
	}

	// steps 3..N+2: allowance for each recurring contract
	if s.Intent.IsRecurring() {
		for i, c := range contracts {
			if err := s.transition(PhaseApprovingContract); err != nil {
				return err
			}
			s.setProgress(3+i, "Authorize payment contract %d of %d", i+1, len(contracts))

			rec := s.record(models.PurposeApproveContract, i, s.token, c.ApprovalAmount)
			grant := models.AuthorizationGrant{Owner: account, Spender: c.Address, Token: s.token, Amount: c.ApprovalAmount}
			if err := o.authorize(ctx, s, rec, grant, PhaseConfirmingContractApproval); err != nil {
				return err
			}
			if err := s.advanceContract(c, models.StateAuthorized); err != nil {
				return err
			}
		}
	}

	final := models.StateActive
	if s.Intent.Kind == models.KindInstant {
		final = models.StateExhausted
	}
	if err := s.advanceContracts(final); err != nil {
		return err
	}

	want := 2
	if s.Intent.IsRecurring() {
		want += len(contracts)
	}
	if !s.allConfirmed(want) {
		return fmt.Errorf("session %s finished with unconfirmed transactions", s.ID)
	}

	if err := s.transition(PhasePersisting); err != nil {
		return err
	}
	s.setProgress(s.totalSteps, "Recording the payment")
	o.persist(ctx, s, persistence.Outcome{
		Intent:    s.Intent,
		ChainID:   o.cfg.ChainID,
		Decimals:  decimals,
		Contracts: contracts,
		TxHash:    createHash,
	})
	return nil
}

// extractContracts reads the created addresses from the creation receipt
func (o *Orchestrator) extractContracts(ctx context.Context, s *Session, plan *createPlan, receipt *types.Receipt, hash common.Hash) ([]*models.ContractInstance, error) {
	if receipt == nil {
		var err error
		receipt, err = o.ledger.GetReceipt(ctx, hash)
		if err != nil {
			return nil, txerror.Classify(fmt.Errorf("failed to fetch creation receipt: %w", err)).WithTx(hash)
		}
	}

	addrs, err := o.extractor.Extract(receipt, len(plan.instances), s.token)
	if err != nil {
		return nil, err
	}

	now := o.now()
	for i, c := range plan.instances {
		c.Address = addrs[i]
		c.CreatedAt = now
		if err := c.Advance(models.StateCreated); err != nil {
			return nil, err
		}
		o.logger.InfoWithChain(o.cfg.ChainID, "Session %s: %s payment contract %s created for %s",
			s.ID, c.Type, c.Address.Hex(), c.Beneficiary.Hex())
	}
	return plan.instances, nil
}
