package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/payflow/pkg/chainclient"
	"github.com/speedrun-hq/payflow/pkg/chains"
	"github.com/speedrun-hq/payflow/pkg/contracts"
	"github.com/speedrun-hq/payflow/pkg/models"
	"github.com/speedrun-hq/payflow/pkg/txerror"
)

const bpsDenominator = 10000

// Fee returns the protocol fee charged on amount
func Fee(amount *big.Int, bps int64) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(bps))
	return fee.Quo(fee, big.NewInt(bpsDenominator))
}

// WithFee returns amount plus its protocol fee
func WithFee(amount *big.Int, bps int64) *big.Int {
	return new(big.Int).Add(amount, Fee(amount, bps))
}

// RecurringApproval returns the allowance a recurring contract needs for its
// whole schedule: the first installment and months-1 regular installments,
// each with its fee
func RecurringApproval(first, monthly *big.Int, months int, bps int64) *big.Int {
	total := WithFee(first, bps)
	if months > 1 {
		rest := new(big.Int).Mul(WithFee(monthly, bps), big.NewInt(int64(months-1)))
		total.Add(total, rest)
	}
	return total
}

// createPlan is everything a create session submits, computed once up front
type createPlan struct {
	factoryApproval *big.Int
	createData      []byte
	// templates of the contracts the creation deploys, in event order
	instances []*models.ContractInstance
}

func (o *Orchestrator) planCreate(ctx context.Context, intent models.PaymentIntent, account, token common.Address, decimals uint8) (*createPlan, error) {
	bps := o.cfg.ProtocolFeeBps

	switch intent.Kind {
	case models.KindInstant, models.KindScheduled:
		amount, err := chains.ToBaseUnits(intent.Amount, decimals)
		if err != nil {
			return nil, txerror.Wrap(txerror.InvalidIntent, err)
		}
		beneficiary := common.HexToAddress(intent.Beneficiary)

		instance := &models.ContractInstance{
			Type:        models.ContractInstant,
			Payer:       account,
			Beneficiary: beneficiary,
			Token:       token,
			Amount:      amount,
			Schedule:    intent.Schedule,
		}

		var data []byte
		if intent.Kind == models.KindInstant {
			data, err = contracts.FuncCreateInstant.EncodeArgs(token, beneficiary, amount)
		} else {
			instance.Type = models.ContractScheduled
			instance.Cancellable = intent.Cancellable
			releaseTime := big.NewInt(intent.Schedule.FirstExecution.Unix())
			data, err = contracts.FuncCreateScheduled.EncodeArgs(token, beneficiary, amount, releaseTime, intent.Cancellable)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s creation: %v", intent.Kind, err)
		}

		return &createPlan{
			factoryApproval: WithFee(amount, bps),
			createData:      data,
			instances:       []*models.ContractInstance{instance},
		}, nil

	case models.KindRecurring, models.KindRecurringBatch:
		months := intent.Schedule.TotalInstallments
		recipients := intent.Recipients()

		var (
			beneficiaries = make([]common.Address, 0, len(recipients))
			monthlies     = make([]*big.Int, 0, len(recipients))
			firsts        = make([]*big.Int, 0, len(recipients))
			instances     = make([]*models.ContractInstance, 0, len(recipients))
		)
		for _, r := range recipients {
			monthly, err := chains.ToBaseUnits(r.MonthlyAmount, decimals)
			if err != nil {
				return nil, txerror.Wrap(txerror.InvalidIntent, err)
			}
			first, err := chains.ToBaseUnits(r.FirstAmount(), decimals)
			if err != nil {
				return nil, txerror.Wrap(txerror.InvalidIntent, err)
			}
			beneficiary := common.HexToAddress(r.Address)

			beneficiaries = append(beneficiaries, beneficiary)
			monthlies = append(monthlies, monthly)
			firsts = append(firsts, first)
			instances = append(instances, &models.ContractInstance{
				Type:             models.ContractRecurring,
				Payer:            account,
				Beneficiary:      beneficiary,
				Token:            token,
				MonthlyAmount:    monthly,
				FirstMonthAmount: first,
				ApprovalAmount:   RecurringApproval(first, monthly, months, bps),
				Schedule:         intent.Schedule,
				Cancellable:      intent.Cancellable,
			})
		}

		start := big.NewInt(intent.Schedule.FirstExecution.Unix())
		total := big.NewInt(int64(months))
		day := big.NewInt(int64(intent.Schedule.DayOfMonth))

		var (
			data []byte
			err  error
		)
		if intent.Kind == models.KindRecurring {
			data, err = contracts.FuncCreateRecurring.EncodeArgs(
				token, beneficiaries[0], monthlies[0], firsts[0], start, total, day, intent.Cancellable,
			)
		} else {
			data, err = contracts.FuncCreateRecurringBatch.EncodeArgs(
				token, beneficiaries, monthlies, firsts, start, total, day, intent.Cancellable,
			)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s creation: %v", intent.Kind, err)
		}

		fee, err := o.creationFee(ctx)
		if err != nil {
			return nil, err
		}

		return &createPlan{
			factoryApproval: new(big.Int).Mul(fee, big.NewInt(int64(len(recipients)))),
			createData:      data,
			instances:       instances,
		}, nil
	}

	return nil, txerror.New(txerror.InvalidIntent, "cannot create a %s payment", intent.Kind)
}

// creationFee returns the per-contract factory fee of recurring payments
func (o *Orchestrator) creationFee(ctx context.Context) (*big.Int, error) {
	if o.cfg.CreationFee != nil {
		return o.cfg.CreationFee, nil
	}
	fee, err := chainclient.ReadUint(ctx, o.ledger, o.cfg.FactoryAddress, contracts.FieldCreationFee)
	if err != nil {
		if ctx.Err() != nil {
			return nil, txerror.Classify(ctx.Err())
		}
		// a factory without the view charges no fee
		if txerror.Classify(err).Kind != txerror.ContractReverted {
			return nil, txerror.Classify(fmt.Errorf("failed to read creation fee of %s: %w", o.cfg.FactoryAddress.Hex(), err))
		}
		o.logger.WarnWithChain(o.cfg.ChainID, "Factory %s has no readable creation fee, approving zero: %v",
			o.cfg.FactoryAddress.Hex(), err)
		return new(big.Int), nil
	}
	return fee, nil
}

// tokenDecimals reads the token decimals, falling back to the well-known value
func (o *Orchestrator) tokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	decimals, err := chainclient.ReadDecimals(ctx, o.ledger, o.decimals, token)
	if err == nil {
		return decimals, nil
	}
	if known, ok := chains.KnownDecimals(o.cfg.ChainID, chains.GetTokenType(token.Hex())); ok {
		o.logger.DebugWithChain(o.cfg.ChainID, "Using known decimals for %s: %v", token.Hex(), err)
		return known, nil
	}
	return 0, txerror.Classify(fmt.Errorf("failed to read decimals of %s: %w", token.Hex(), err))
}

// resolveToken maps a configured symbol or an address to the token address
func (o *Orchestrator) resolveToken(token string) (common.Address, error) {
	if addr, ok := o.cfg.Tokens[strings.ToUpper(strings.TrimSpace(token))]; ok {
		return addr, nil
	}
	return chains.ResolveToken(o.cfg.ChainID, token)
}
