package persistence

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/speedrun-hq/payflow/pkg/chains"
	"github.com/speedrun-hq/payflow/pkg/logger"
	"github.com/speedrun-hq/payflow/pkg/models"
	"github.com/speedrun-hq/payflow/pkg/txerror"
)

// Store record statuses
const (
	StatusCompleted = "completed"
	StatusScheduled = "scheduled"
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

// Outcome is the confirmed on-chain result of a session
type Outcome struct {
	Intent    models.PaymentIntent
	ChainID   int
	Decimals  uint8
	Contracts []*models.ContractInstance
	// TxHash is the creation or cancellation transaction
	TxHash common.Hash
}

// Syncer writes session outcomes to the store
type Syncer struct {
	store  Store
	logger logger.Logger
	now    func() time.Time
}

// NewSyncer creates a new syncer
func NewSyncer(store Store, logger logger.Logger) *Syncer {
	return &Syncer{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Sync records the outcome. A failure is returned as a persistence_failed
// warning; the on-chain result it describes stands regardless.
func (s *Syncer) Sync(ctx context.Context, out Outcome) *txerror.Error {
	var errs []error

	switch out.Intent.Kind {
	case models.KindInstant, models.KindScheduled:
		if out.Intent.ID == "" {
			s.logger.Debug("No store record for %s payment, nothing to update", out.Intent.Kind)
			return nil
		}
		status := StatusCompleted
		if out.Intent.Kind == models.KindScheduled {
			status = StatusScheduled
		}
		update := StatusUpdate{Status: status, TxHash: out.TxHash.Hex()}
		if len(out.Contracts) > 0 {
			update.ContractAddress = out.Contracts[0].Address.Hex()
		}
		if err := s.store.UpdatePayment(ctx, out.Intent.ID, update); err != nil {
			errs = append(errs, err)
		}

	case models.KindRecurring, models.KindRecurringBatch:
		for _, c := range out.Contracts {
			record, err := s.recurringRecord(out, c)
			if err == nil {
				err = s.store.CreateRecurring(ctx, record)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("contract %s: %w", c.Address.Hex(), err))
			}
		}

	case models.KindCancel:
		if len(out.Contracts) == 0 {
			return txerror.New(txerror.PersistenceFailed, "no cancelled contract to record")
		}
		c := out.Contracts[0]
		id := out.Intent.ID
		if id == "" {
			id = c.Address.Hex()
		}
		cancelledAt := s.now().UTC()
		update := StatusUpdate{Status: StatusCancelled, CancelledAt: &cancelledAt, TxHash: out.TxHash.Hex()}

		var err error
		if c.Type == models.ContractRecurring {
			err = s.store.UpdateRecurring(ctx, id, update)
		} else {
			err = s.store.UpdatePayment(ctx, id, update)
		}
		if err != nil {
			errs = append(errs, err)
		}

	default:
		return txerror.New(txerror.PersistenceFailed, "unknown payment kind %q", out.Intent.Kind)
	}

	if len(errs) == 0 {
		s.logger.InfoWithChain(out.ChainID, "Recorded %s outcome of %s", out.Intent.Kind, out.TxHash.Hex())
		return nil
	}

	err := errors.Join(errs...)
	s.logger.ErrorWithChain(out.ChainID, "On-chain %s confirmed but the record was not saved: %v", out.Intent.Kind, err)
	return txerror.Wrap(txerror.PersistenceFailed, err).WithTx(out.TxHash)
}

func (s *Syncer) recurringRecord(out Outcome, c *models.ContractInstance) (RecurringRecord, error) {
	monthly, err := humanAmount(c.MonthlyAmount, out.Decimals)
	if err != nil {
		return RecurringRecord{}, fmt.Errorf("monthly amount: %w", err)
	}
	first := monthly
	if c.FirstMonthAmount != nil && c.FirstMonthAmount.Sign() > 0 {
		if first, err = humanAmount(c.FirstMonthAmount, out.Decimals); err != nil {
			return RecurringRecord{}, fmt.Errorf("first month amount: %w", err)
		}
	}

	return RecurringRecord{
		ContractAddress:  c.Address.Hex(),
		ChainID:          out.ChainID,
		Payer:            c.Payer.Hex(),
		Beneficiary:      c.Beneficiary.Hex(),
		Token:            c.Token.Hex(),
		MonthlyAmount:    monthly,
		FirstMonthAmount: first,
		TotalMonths:      c.Schedule.TotalInstallments,
		DayOfMonth:       c.Schedule.DayOfMonth,
		StartTime:        c.Schedule.FirstExecution.UTC(),
		Cancellable:      c.Cancellable,
		TxHash:           out.TxHash.Hex(),
		Status:           StatusActive,
	}, nil
}

func humanAmount(amount *big.Int, decimals uint8) (decimal.Decimal, error) {
	return chains.GetStandardizedAmount(amount, decimals)
}
