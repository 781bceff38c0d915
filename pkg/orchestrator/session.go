package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/payflow/pkg/metrics"
	"github.com/speedrun-hq/payflow/pkg/models"
	"github.com/speedrun-hq/payflow/pkg/txerror"
	"github.com/speedrun-hq/payflow/pkg/watcher"
)

const subscriberBuffer = 16

// ErrorInfo is a classified error as shown to the user
type ErrorInfo struct {
	Kind    txerror.Kind    `json:"kind"`
	Message string          `json:"message"`
	Detail  string          `json:"detail,omitempty"`
	TxHash  *common.Hash    `json:"tx_hash,omitempty"`
	Address *common.Address `json:"address,omitempty"`
}

// Status is the observable state of a session
type Status struct {
	SessionID       string                     `json:"session_id"`
	Kind            models.PaymentKind         `json:"kind"`
	Phase           Phase                      `json:"phase"`
	CurrentStep     int                        `json:"current_step"`
	TotalSteps      int                        `json:"total_steps"`
	ProgressMessage string                     `json:"progress_message"`
	Error           *ErrorInfo                 `json:"error,omitempty"`
	Warning         *ErrorInfo                 `json:"warning,omitempty"`
	ResultAddresses []common.Address           `json:"result_addresses"`
	Records         []models.TransactionRecord `json:"records"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

// attempt is the latest submission of a step's transaction. It outlives the
// run that started it so a retry can keep waiting on it.
type attempt struct {
	gen   int
	sub   *watcher.Submission
	probe watcher.Probe
}

// Session tracks one payment intent through its transactions. It owns its
// transaction records; nothing outside the session mutates them.
type Session struct {
	ID        string
	Intent    models.PaymentIntent
	CreatedAt time.Time

	locale  string
	account common.Address
	token   common.Address

	mu           sync.Mutex
	phase        Phase
	phaseStarted time.Time
	currentStep  int
	totalSteps   int
	progress     string
	err          *txerror.Error
	warning      *txerror.Error
	records      []*models.TransactionRecord
	contracts    []*models.ContractInstance
	attempts     map[*models.TransactionRecord]*attempt
	persisted    bool
	subscribers  []chan Status
	done         chan struct{}
	updatedAt    time.Time
}

func newSession(id string, intent models.PaymentIntent, locale string, totalSteps int) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Intent:       intent,
		CreatedAt:    now,
		locale:       locale,
		phase:        PhaseIdle,
		phaseStarted: now,
		totalSteps:   totalSteps,
		progress:     "Waiting to start",
		done:         make(chan struct{}),
		updatedAt:    now,
		attempts:     make(map[*models.TransactionRecord]*attempt),
	}
}

// Phase returns the current phase
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Snapshot returns the current status
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Subscribe streams status updates. The channel is closed once the session
// reaches a terminal phase; slow readers miss intermediate updates, never the last one.
func (s *Session) Subscribe() <-chan Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Status, subscriberBuffer)
	ch <- s.statusLocked()
	if s.phase.IsTerminal() {
		close(ch)
		return ch
	}
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Wait blocks until the session reaches a terminal phase
func (s *Session) Wait(ctx context.Context) (Status, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		return s.Snapshot(), nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// Done is closed when the current run of the session ends
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// transition moves the session along the transition table
func (s *Session) transition(to Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

// advanceIf transitions only while the session is still in phase from
func (s *Session) advanceIf(from, to Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == from {
		_ = s.transitionLocked(to)
	}
}

func (s *Session) transitionLocked(to Phase) error {
	if !CanTransition(s.phase, to) {
		return &ErrInvalidTransition{From: s.phase, To: to}
	}

	now := time.Now()
	metrics.PhaseDuration.WithLabelValues(string(s.phase)).Observe(now.Sub(s.phaseStarted).Seconds())
	s.phase = to
	s.phaseStarted = now
	s.updatedAt = now

	if to.IsTerminal() {
		s.publishLocked()
		for _, ch := range s.subscribers {
			close(ch)
		}
		s.subscribers = nil
		close(s.done)
		return nil
	}
	s.publishLocked()
	return nil
}

// reset returns a terminal session to idle for a retry, keeping its records
func (s *Session) reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseError && s.phase != PhaseUnknownTimeout {
		return fmt.Errorf("session %s is %s and cannot be retried", s.ID, s.phase)
	}
	s.phase = PhaseIdle
	s.phaseStarted = time.Now()
	s.err = nil
	s.progress = "Retrying"
	s.done = make(chan struct{})
	s.updatedAt = s.phaseStarted
	return nil
}

func (s *Session) setProgress(step int, format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentStep = step
	s.progress = fmt.Sprintf(format, args...)
	s.updatedAt = time.Now()
	s.publishLocked()
}

// fail ends the session in error or unknown_timeout
func (s *Session) fail(err *txerror.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = err
	s.progress = err.Message(s.locale)
	to := PhaseError
	if err.Kind == txerror.UnknownTimeout {
		to = PhaseUnknownTimeout
	}
	_ = s.transitionLocked(to)
}

func (s *Session) setWarning(w *txerror.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warning = w
}

// markPersisted latches the persistence step. Only the first caller gets true.
func (s *Session) markPersisted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persisted {
		return false
	}
	s.persisted = true
	return true
}

// record returns the record of a step, creating it on first use
func (s *Session) record(purpose models.TxPurpose, index int, to common.Address, amount *big.Int) *models.TransactionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.Purpose == purpose && r.Index == index {
			return r
		}
	}
	now := time.Now()
	r := &models.TransactionRecord{
		Purpose:   purpose,
		Index:     index,
		Status:    models.TxSubmitted,
		To:        to,
		Amount:    amount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.records = append(s.records, r)
	return r
}

// dropRecord forgets a record whose transaction was never broadcast
func (s *Session) dropRecord(rec *models.TransactionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, rec)
	for i, r := range s.records {
		if r == rec {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return
		}
	}
}

// beginAttempt supersedes any earlier submission of rec and returns the new generation
func (s *Session) beginAttempt(rec *models.TransactionRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen := 1
	if prev, ok := s.attempts[rec]; ok {
		gen = prev.gen + 1
	}
	s.attempts[rec] = &attempt{gen: gen}
	return gen
}

func (s *Session) setAttempt(rec *models.TransactionRecord, gen int, sub *watcher.Submission, probe watcher.Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.attempts[rec]; ok && a.gen == gen {
		a.sub = sub
		a.probe = probe
	}
}

// isCurrentAttempt reports whether gen is still the latest submission of rec
func (s *Session) isCurrentAttempt(rec *models.TransactionRecord, gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[rec]
	return ok && a.gen == gen
}

// lastAttempt returns the latest submission of rec, nil if there was none
func (s *Session) lastAttempt(rec *models.TransactionRecord) (*watcher.Submission, watcher.Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.attempts[rec]; ok {
		return a.sub, a.probe
	}
	return nil, nil
}

// updateRecord mutates a record under the session lock and publishes the change
func (s *Session) updateRecord(rec *models.TransactionRecord, fn func(r *models.TransactionRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(rec)
	rec.UpdatedAt = time.Now()
	s.updatedAt = rec.UpdatedAt
	s.publishLocked()
}

// readRecord returns a copy of a record
func (s *Session) readRecord(rec *models.TransactionRecord) models.TransactionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *rec
}

// allConfirmed reports whether want records exist and every one is confirmed
func (s *Session) allConfirmed(want int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) != want {
		return false
	}
	for _, r := range s.records {
		if !r.IsConfirmed() {
			return false
		}
	}
	return true
}

func (s *Session) setContracts(contracts []*models.ContractInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts = contracts
	s.publishLocked()
}

func (s *Session) getContracts() []*models.ContractInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contracts
}

// advanceContracts moves every contract forward in its lifecycle
func (s *Session) advanceContracts(to models.LifecycleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contracts {
		if c.State == to {
			continue
		}
		if err := c.Advance(to); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) publishLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	status := s.statusLocked()
	for _, ch := range s.subscribers {
		select {
		case ch <- status:
		default:
			// drop the oldest update to make room for the newest
			select {
			case <-ch:
			default:
			}
			ch <- status
		}
	}
}

func (s *Session) statusLocked() Status {
	status := Status{
		SessionID:       s.ID,
		Kind:            s.Intent.Kind,
		Phase:           s.phase,
		CurrentStep:     s.currentStep,
		TotalSteps:      s.totalSteps,
		ProgressMessage: s.progress,
		Error:           s.errorInfo(s.err),
		Warning:         s.errorInfo(s.warning),
		ResultAddresses: make([]common.Address, 0, len(s.contracts)),
		Records:         make([]models.TransactionRecord, 0, len(s.records)),
		UpdatedAt:       s.updatedAt,
	}
	for _, c := range s.contracts {
		status.ResultAddresses = append(status.ResultAddresses, c.Address)
	}
	for _, r := range s.records {
		status.Records = append(status.Records, *r)
	}
	return status
}

func (s *Session) errorInfo(err *txerror.Error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{
		Kind:    err.Kind,
		Message: err.Message(s.locale),
		Detail:  err.Raw,
	}
	if err.TxHash != (common.Hash{}) {
		hash := err.TxHash
		info.TxHash = &hash
	}
	if err.Address != (common.Address{}) {
		addr := err.Address
		info.Address = &addr
	}
	return info
}

// findRecord returns the record of a step without creating it
func (s *Session) findRecord(purpose models.TxPurpose, index int) (models.TransactionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Purpose == purpose && r.Index == index {
			return *r, true
		}
	}
	return models.TransactionRecord{}, false
}

func (s *Session) advanceContract(c *models.ContractInstance, to models.LifecycleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := c.Advance(to); err != nil {
		return err
	}
	s.publishLocked()
	return nil
}

// cancelContracts marks every contract of the session cancelled
func (s *Session) cancelContracts() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contracts {
		if c.State == models.StateCancelled {
			continue
		}
		if err := c.Cancel(); err != nil {
			return err
		}
	}
	s.publishLocked()
	return nil
}

func (s *Session) getAccount() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}
