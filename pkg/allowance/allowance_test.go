package allowance

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/payflow/pkg/contracts"
	"github.com/speedrun-hq/payflow/pkg/logger"
	"github.com/speedrun-hq/payflow/pkg/mocks"
	"github.com/speedrun-hq/payflow/pkg/models"
	"github.com/speedrun-hq/payflow/pkg/signer"
	"github.com/speedrun-hq/payflow/pkg/watcher"
)

var (
	owner   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	spender = common.HexToAddress("0x2222222222222222222222222222222222222222")
	token   = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
)

func testGrant(amount int64) models.AuthorizationGrant {
	return models.AuthorizationGrant{Owner: owner, Spender: spender, Token: token, Amount: big.NewInt(amount)}
}

func setup(t *testing.T) (*Manager, *mocks.MockLedger, *mocks.MockSigner, *watcher.Watcher) {
	t.Helper()
	ledger := mocks.NewMockLedger()
	s := mocks.NewMockSigner(owner, 8453, ledger)
	w := watcher.New(ledger, watcher.Config{PollInterval: 5 * time.Millisecond, PollAttempts: 20, GracePeriod: 200 * time.Millisecond}, &logger.EmptyLogger{})
	return New(s, ledger, &logger.EmptyLogger{}), ledger, s, w
}

func TestRequest(t *testing.T) {
	req, err := Request(testGrant(1_000_000), models.PurposeApproveFactory)
	require.NoError(t, err)

	want, err := contracts.FuncApprove.EncodeArgs(spender, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, token, req.To)
	assert.Equal(t, want, req.Data)
	assert.Equal(t, models.PurposeApproveFactory, req.Purpose)

	_, err = Request(testGrant(0), models.PurposeApproveFactory)
	assert.NoError(t, err, "a zero grant is still an explicit prompt")

	_, err = Request(testGrant(-1), models.PurposeApproveFactory)
	assert.Error(t, err)

	noSpender := testGrant(1)
	noSpender.Spender = common.Address{}
	_, err = Request(noSpender, models.PurposeApproveFactory)
	assert.Error(t, err)
}

func TestEnsure_AlwaysSubmits(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m, ledger, s, w := setup(t)
	// an allowance that already covers the grant still gets a fresh prompt
	ledger.SetField(token, contracts.FieldAllowance, big.NewInt(10_000_000), owner, spender)

	p, err := m.Ensure(ctx, testGrant(1_000_000), models.PurposeApproveContract, nil)
	require.NoError(t, err)
	assert.Nil(t, p.Probe)

	out := w.Watch(ctx, p.Submission, p.Probe)
	assert.Equal(t, Granted, Resolve(out))
	assert.Equal(t, watcher.StatusConfirmed, out.Status)

	require.Len(t, s.Requests(), 1)
	assert.Equal(t, models.PurposeApproveContract, s.Requests()[0].Purpose)
}

func TestEnsure_ProbeTracksAllowance(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m, ledger, _, _ := setup(t)
	ledger.SetField(token, contracts.FieldAllowance, big.NewInt(0), owner, spender)

	probe := m.Probe(ctx, testGrant(500))
	require.NotNil(t, probe)

	ok, err := probe(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	ledger.SetField(token, contracts.FieldAllowance, big.NewInt(500), owner, spender)
	ok, err = probe(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnsure_Results(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tests := []struct {
		name  string
		react mocks.Reaction
		want  Result
	}{
		{"rejected", mocks.Reaction{Err: errors.New("User denied transaction signature")}, Rejected},
		{"reverted", mocks.Reaction{Revert: true}, Failed},
		{"rpc failure", mocks.Reaction{Err: errors.New("connection refused")}, Failed},
		{"never mined", mocks.Reaction{Unmined: true}, Uncertain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, s, w := setup(t)
			s.React = func(signer.TxRequest, int) mocks.Reaction { return tt.react }

			p, err := m.Ensure(ctx, testGrant(1), models.PurposeApproveFactory, nil)
			require.NoError(t, err)

			out := w.Watch(ctx, p.Submission, p.Probe)
			assert.Equal(t, tt.want, Resolve(out))
		})
	}
}
