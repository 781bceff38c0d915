// Package allowance requests ERC20 authorization grants through the signing agent.
package allowance

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/payflow/pkg/chainclient"
	"github.com/speedrun-hq/payflow/pkg/contracts"
	"github.com/speedrun-hq/payflow/pkg/logger"
	"github.com/speedrun-hq/payflow/pkg/models"
	"github.com/speedrun-hq/payflow/pkg/signer"
	"github.com/speedrun-hq/payflow/pkg/txerror"
	"github.com/speedrun-hq/payflow/pkg/watcher"
)

// Result is the resolution of an authorization request
type Result string

const (
	Granted  Result = "granted"
	Rejected Result = "rejected"
	Failed   Result = "failed"
	// Uncertain means the grant could not be confirmed within the grace period
	Uncertain Result = "uncertain"
)

// Pending is an authorization transaction handed to the signing agent
type Pending struct {
	Grant      models.AuthorizationGrant
	Purpose    models.TxPurpose
	Submission *watcher.Submission
	Probe      watcher.Probe
}

// Manager issues approve transactions. It never skips a request because a
// previously observed allowance already covers the amount.
type Manager struct {
	signer signer.Signer
	ledger chainclient.Ledger
	logger logger.Logger
}

// New creates a new allowance manager
func New(s signer.Signer, ledger chainclient.Ledger, logger logger.Logger) *Manager {
	return &Manager{
		signer: s,
		ledger: ledger,
		logger: logger,
	}
}

// Request builds the approve transaction of a grant
func Request(grant models.AuthorizationGrant, purpose models.TxPurpose) (signer.TxRequest, error) {
	if grant.Amount == nil || grant.Amount.Sign() < 0 {
		return signer.TxRequest{}, fmt.Errorf("grant amount must not be negative")
	}
	if grant.Spender == (common.Address{}) || grant.Token == (common.Address{}) {
		return signer.TxRequest{}, fmt.Errorf("grant requires token and spender")
	}

	data, err := contracts.FuncApprove.EncodeArgs(grant.Spender, grant.Amount)
	if err != nil {
		return signer.TxRequest{}, fmt.Errorf("failed to encode approve: %v", err)
	}
	return signer.TxRequest{To: grant.Token, Data: data, Purpose: purpose}, nil
}

// Ensure submits a fresh approve for the grant and returns it with a probe
// the watcher can use while the transaction hash is unknown
func (m *Manager) Ensure(ctx context.Context, grant models.AuthorizationGrant, purpose models.TxPurpose, onHash func(common.Hash)) (*Pending, error) {
	req, err := Request(grant, purpose)
	if err != nil {
		return nil, txerror.Wrap(txerror.InvalidIntent, err)
	}

	probe := m.Probe(ctx, grant)

	m.logger.Info("Requesting approval of %s for spender %s on token %s",
		grant.Amount.String(), grant.Spender.Hex(), grant.Token.Hex())

	return &Pending{
		Grant:      grant,
		Purpose:    purpose,
		Submission: watcher.Submit(ctx, m.signer, req, onHash),
		Probe:      probe,
	}, nil
}

// Probe returns a check that the allowance rose to cover the grant. It is
// nil when the allowance already covered the grant before the request,
// since the state could not tell the new approval apart.
func (m *Manager) Probe(ctx context.Context, grant models.AuthorizationGrant) watcher.Probe {
	baseline, err := chainclient.ReadAllowance(ctx, m.ledger, grant.Token, grant.Owner, grant.Spender)
	if err != nil {
		m.logger.Debug("Could not read allowance baseline for %s: %v", grant.Spender.Hex(), err)
		return nil
	}
	if baseline.Cmp(grant.Amount) >= 0 {
		return nil
	}

	return func(ctx context.Context) (bool, error) {
		current, err := chainclient.ReadAllowance(ctx, m.ledger, grant.Token, grant.Owner, grant.Spender)
		if err != nil {
			return false, err
		}
		return current.Cmp(grant.Amount) >= 0, nil
	}
}

// Resolve maps a watch outcome to a grant result
func Resolve(out watcher.Outcome) Result {
	switch out.Status {
	case watcher.StatusConfirmed:
		return Granted
	case watcher.StatusAbandoned:
		return Uncertain
	case watcher.StatusFailed:
		if out.Err != nil && txerror.Classify(out.Err).Kind == txerror.UserRejected {
			return Rejected
		}
	}
	return Failed
}
