// Package orchestrator turns payment intents into ordered chains of
// authorization, creation and cancellation transactions, and tracks each
// chain to a terminal state consistent with the ledger.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/speedrun-hq/payflow/pkg/allowance"
	"github.com/speedrun-hq/payflow/pkg/chainclient"
	"github.com/speedrun-hq/payflow/pkg/extractor"
	"github.com/speedrun-hq/payflow/pkg/logger"
	"github.com/speedrun-hq/payflow/pkg/metrics"
	"github.com/speedrun-hq/payflow/pkg/models"
	"github.com/speedrun-hq/payflow/pkg/persistence"
	"github.com/speedrun-hq/payflow/pkg/signer"
	"github.com/speedrun-hq/payflow/pkg/txerror"
	"github.com/speedrun-hq/payflow/pkg/watcher"
)

// DecimalsCacheTTL is how long token decimals are cached
const DecimalsCacheTTL = time.Hour

var (
	// ErrSessionNotFound is returned for an unknown session id
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionActive is returned when dismissing a session that is still running
	ErrSessionActive = errors.New("session is still running")
)

// Config holds the orchestrator settings
type Config struct {
	ChainID        int
	FactoryAddress common.Address
	// Tokens maps upper-case symbols to token addresses
	Tokens         map[string]common.Address
	ProtocolFeeBps int64
	// CreationFee overrides the factory's per-contract creation fee when set
	CreationFee *big.Int
	Locale      string
	Watcher     watcher.Config
}

// Orchestrator runs and tracks orchestration sessions
type Orchestrator struct {
	cfg       Config
	ledger    chainclient.Ledger
	signer    signer.Signer
	allowance *allowance.Manager
	watcher   *watcher.Watcher
	extractor *extractor.Extractor
	syncer    *persistence.Syncer
	decimals  *chainclient.DecimalsCache
	logger    logger.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// New creates a new orchestrator. store may be nil, in which case outcomes are not recorded.
func New(cfg Config, ledger chainclient.Ledger, s signer.Signer, store persistence.Store, logger logger.Logger) *Orchestrator {
	if cfg.Locale == "" {
		cfg.Locale = txerror.DefaultLocale
	}

	var syncer *persistence.Syncer
	if store != nil {
		syncer = persistence.NewSyncer(store, logger)
	}

	return &Orchestrator{
		cfg:       cfg,
		ledger:    ledger,
		signer:    s,
		allowance: allowance.New(s, ledger, logger),
		watcher:   watcher.New(ledger, cfg.Watcher, logger),
		extractor: extractor.New(cfg.FactoryAddress, logger),
		syncer:    syncer,
		decimals:  chainclient.NewDecimalsCache(DecimalsCacheTTL),
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Start validates the intent and runs it in the background. ctx bounds the
// whole session, not just this call.
func (o *Orchestrator) Start(ctx context.Context, intent models.PaymentIntent) (*Session, error) {
	if err := intent.Validate(); err != nil {
		return nil, txerror.Wrap(txerror.InvalidIntent, err)
	}

	totalSteps := 1
	var token common.Address
	if intent.Kind != models.KindCancel {
		addr, err := o.resolveToken(intent.Token)
		if err != nil {
			return nil, txerror.Wrap(txerror.InvalidIntent, err)
		}
		token = addr
		totalSteps = 2
		if intent.IsRecurring() {
			totalSteps += len(intent.Recipients())
		}
	}

	s := newSession(uuid.New().String(), intent, o.cfg.Locale, totalSteps)
	s.token = token

	o.mu.Lock()
	o.sessions[s.ID] = s
	o.mu.Unlock()

	metrics.SessionsStarted.WithLabelValues(string(intent.Kind)).Inc()
	o.logger.InfoWithChain(o.cfg.ChainID, "Session %s started for %s payment", s.ID, intent.Kind)

	o.launch(ctx, s)
	return s, nil
}

// Get returns a session by id
func (o *Orchestrator) Get(id string) (*Session, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns every tracked session, oldest first
func (o *Orchestrator) List() []*Session {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Retry resumes a session that ended in error or unknown_timeout from its
// current phase. Confirmed steps are skipped and steps with a known hash are
// watched again instead of resubmitted.
func (o *Orchestrator) Retry(ctx context.Context, id string) (*Session, error) {
	s, err := o.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.reset(); err != nil {
		return nil, err
	}

	o.logger.InfoWithChain(o.cfg.ChainID, "Session %s retrying", s.ID)
	o.launch(ctx, s)
	return s, nil
}

// Dismiss forgets a session that reached a terminal phase
func (o *Orchestrator) Dismiss(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if !s.Phase().IsTerminal() {
		return ErrSessionActive
	}
	delete(o.sessions, id)
	return nil
}

// Wait blocks until every running session stops
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) launch(ctx context.Context, s *Session) {
	metrics.ActiveSessions.Inc()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer metrics.ActiveSessions.Dec()
		o.run(ctx, s)
	}()
}

func (o *Orchestrator) run(ctx context.Context, s *Session) {
	err := o.checkSigner(ctx, s)
	if err == nil {
		if s.Intent.Kind == models.KindCancel {
			err = o.runCancel(ctx, s)
		} else {
			err = o.runCreate(ctx, s)
		}
	}
	o.finish(s, err)
}

// finish moves the session to its terminal phase
func (o *Orchestrator) finish(s *Session, err error) {
	kind := string(s.Intent.Kind)

	if err == nil {
		if terr := s.transition(PhaseSuccess); terr != nil {
			err = terr
		} else {
			metrics.SessionsFinished.WithLabelValues(kind, "success").Inc()
			o.logger.InfoWithChain(o.cfg.ChainID, "Session %s succeeded", s.ID)
			return
		}
	}

	classified := txerror.Classify(err)
	s.fail(classified)

	metrics.ClassifiedErrors.WithLabelValues(string(classified.Kind)).Inc()
	metrics.SessionsFinished.WithLabelValues(kind, string(classified.Kind.Outcome())).Inc()
	if classified.Kind == txerror.UnknownTimeout {
		o.logger.WarnWithChain(o.cfg.ChainID, "Session %s could not be confirmed in time: %v", s.ID, classified)
		return
	}
	o.logger.ErrorWithChain(o.cfg.ChainID, "Session %s failed: %v", s.ID, classified)
}

// checkSigner makes sure the signing agent has an account on the configured chain
func (o *Orchestrator) checkSigner(ctx context.Context, s *Session) error {
	accounts, err := o.signer.RequestAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return txerror.New(txerror.UserRejected, "no account available")
	}

	chainID, err := o.signer.ActiveChain(ctx)
	if err != nil {
		return fmt.Errorf("failed to get active chain: %w", err)
	}
	if chainID == nil || chainID.Cmp(big.NewInt(int64(o.cfg.ChainID))) != 0 {
		return txerror.New(txerror.WrongNetwork, "signing agent is on chain %v, expected %d", chainID, o.cfg.ChainID)
	}

	s.mu.Lock()
	s.account = accounts[0]
	s.mu.Unlock()
	return nil
}

// persist records the outcome once per session. Failures become a warning.
func (o *Orchestrator) persist(ctx context.Context, s *Session, out persistence.Outcome) {
	if !s.markPersisted() {
		o.logger.Debug("Session %s already persisted", s.ID)
		return
	}
	if o.syncer == nil {
		return
	}
	if warning := o.syncer.Sync(ctx, out); warning != nil {
		s.setWarning(warning)
	}
}
