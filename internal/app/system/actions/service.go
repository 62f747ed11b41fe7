// Package actions runs retrain and switch requests against the model backend.
//
// An action is fire-and-forget: Trigger returns at once, the POST runs in its
// own goroutine under timeouts.Action(), and the result is recorded in the
// ledger and left as a short-lived notification for the visitor. Completion
// never touches a board directly; it only calls the completion hook, which the
// retrain page uses to refresh its board.
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	actionstore "github.com/dalemusser/stratacast/internal/app/store/actions"
	"github.com/dalemusser/stratacast/internal/app/system/catalog"
	"github.com/dalemusser/stratacast/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratacast/internal/app/system/timeouts"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultNotificationTTL is how long a notification stays in a visitor's inbox.
const DefaultNotificationTTL = 5 * time.Second

var (
	// ErrBusy is returned when the visitor already has the same action running.
	ErrBusy = errors.New("action already running")
	// ErrUnknownKind is returned for a kind other than retrain or switch.
	ErrUnknownKind = errors.New("unknown action kind")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("action service closed")
)

// Level is the severity a notification is shown with.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notification is the transient message left for a visitor when an action ends.
type Notification struct {
	ActionID string           `json:"actionId"`
	Kind     actionstore.Kind `json:"kind"`
	Level    Level            `json:"level"`
	Message  string           `json:"message"`
	At       time.Time        `json:"at"`
}

// Poster sends a write request to the backend.
type Poster interface {
	Post(ctx context.Context, path string) (json.RawMessage, error)
}

// Ledger records actions. *actionstore.Store satisfies it.
type Ledger interface {
	Start(ctx context.Context, a actionstore.Action) (actionstore.Action, error)
	Finish(ctx context.Context, actionID string, outcome actionstore.Outcome, message string, count int) error
	Recent(ctx context.Context, visitor string, limit int64) ([]actionstore.Action, error)
}

// Option configures a Service.
type Option func(*Service)

// WithLedger records every action in l.
func WithLedger(l Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

// WithCompletion registers fn, called with the visitor id after every action.
func WithCompletion(fn func(visitor string, kind actionstore.Kind)) Option {
	return func(s *Service) { s.onDone = fn }
}

// WithOutcomeObserver registers fn, called with the kind and outcome of every
// finished action.
func WithOutcomeObserver(fn func(kind, outcome string)) Option {
	return func(s *Service) { s.onOutcome = fn }
}

// WithNotificationTTL overrides DefaultNotificationTTL.
func WithNotificationTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type runKey struct {
	visitor string
	kind    actionstore.Kind
}

// Service runs write actions.
type Service struct {
	poster    Poster
	ledger    Ledger
	logger    *zap.Logger
	onDone    func(string, actionstore.Kind)
	onOutcome func(string, string)
	ttl       time.Duration
	now       func() time.Time

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	running map[runKey]string
	inbox   map[string][]Notification
}

// New creates a Service posting through p.
func New(p Poster, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		poster:  p,
		logger:  logger,
		ttl:     DefaultNotificationTTL,
		now:     time.Now,
		running: make(map[runKey]string),
		inbox:   make(map[string][]Notification),
	}
	for _, o := range opts {
		o(s)
	}
	s.base, s.stop = context.WithCancel(context.Background())
	return s
}

// Trigger starts kind for visitor and returns its action id.
func (s *Service) Trigger(visitor string, kind actionstore.Kind, force bool) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	key := runKey{visitor: visitor, kind: kind}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	if _, busy := s.running[key]; busy {
		s.mu.Unlock()
		return "", ErrBusy
	}
	id := uuid.NewString()
	s.running[key] = id
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(key, id, force)
	return id, nil
}

// Running reports whether visitor has kind in flight.
func (s *Service) Running(visitor string, kind actionstore.Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[runKey{visitor: visitor, kind: kind}]
	return ok
}

func (s *Service) run(key runKey, id string, force bool) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.base, timeouts.Action())
	defer cancel()

	log := s.logger.With(
		zap.String("action_id", id),
		zap.String("kind", string(key.kind)),
		zap.Bool("force", force))

	started := s.now()
	if s.ledger != nil {
		_, err := s.ledger.Start(ctx, actionstore.Action{
			ActionID:  id,
			Kind:      key.kind,
			Force:     force,
			Visitor:   key.visitor,
			StartedAt: started.UTC(),
		})
		if err != nil {
			log.Warn("failed to record action start", zap.Error(err))
		}
	}

	path := catalog.Retrain(force)
	if key.kind == actionstore.KindSwitch {
		path = catalog.Switch(force)
	}
	raw, err := s.poster.Post(ctx, path)

	res := interpret(key.kind, raw, err)
	if err != nil {
		log.Warn("action failed", zap.Error(err), zap.Duration("duration", s.now().Sub(started)))
	} else {
		log.Info("action finished",
			zap.String("outcome", string(res.outcome)),
			zap.Int("count", res.count),
			zap.Duration("duration", s.now().Sub(started)))
	}

	if s.ledger != nil {
		fctx, fcancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Short())
		if ferr := s.ledger.Finish(fctx, id, res.outcome, res.message, res.count); ferr != nil {
			log.Warn("failed to record action outcome", zap.Error(ferr))
		}
		fcancel()
	}

	s.mu.Lock()
	delete(s.running, key)
	s.pruneLocked(key.visitor)
	s.inbox[key.visitor] = append(s.inbox[key.visitor], Notification{
		ActionID: id,
		Kind:     key.kind,
		Level:    res.level,
		Message:  res.message,
		At:       s.now(),
	})
	s.mu.Unlock()

	if s.onOutcome != nil {
		s.onOutcome(string(key.kind), string(res.outcome))
	}
	if s.onDone != nil {
		s.onDone(key.visitor, key.kind)
	}
}

type result struct {
	outcome actionstore.Outcome
	level   Level
	message string
	count   int
}

type retrainReply struct {
	ModelsStatus []struct {
		Error json.RawMessage `json:"error"`
	} `json:"models_status"`
}

type switchReply struct {
	SwitchedModels []json.RawMessage `json:"switched_models"`
	Message        string            `json:"message"`
}

func interpret(kind actionstore.Kind, raw json.RawMessage, err error) result {
	if kind == actionstore.KindSwitch {
		if err != nil {
			return result{outcome: actionstore.OutcomeFailed, level: LevelError, message: "Model switching failed"}
		}
		var r switchReply
		_ = json.Unmarshal(raw, &r)
		if n := len(r.SwitchedModels); n > 0 {
			return result{
				outcome: actionstore.OutcomeSucceeded,
				level:   LevelSuccess,
				message: fmt.Sprintf("Successfully switched %d models", n),
				count:   n,
			}
		}
		msg := htmlsanitize.Text(r.Message)
		if msg == "" {
			msg = "No models were switched"
		}
		return result{outcome: actionstore.OutcomeNoop, level: LevelInfo, message: msg}
	}

	if err != nil {
		return result{outcome: actionstore.OutcomeFailed, level: LevelError, message: "Retraining failed"}
	}
	var r retrainReply
	_ = json.Unmarshal(raw, &r)
	if len(r.ModelsStatus) == 0 {
		return result{outcome: actionstore.OutcomeNoop, level: LevelWarning, message: "No models were retrained"}
	}
	ok := 0
	for _, m := range r.ModelsStatus {
		if isNull(m.Error) {
			ok++
		}
	}
	return result{
		outcome: actionstore.OutcomeSucceeded,
		level:   LevelSuccess,
		message: fmt.Sprintf("Successfully retrained %d models", ok),
		count:   ok,
	}
}

// isNull reports whether an error field is absent or falsy.
func isNull(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", "false", `""`:
		return true
	}
	return false
}

// Notifications returns the visitor's unexpired notifications, oldest first,
// and removes them from the inbox.
func (s *Service) Notifications(visitor string) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(visitor)
	out := s.inbox[visitor]
	delete(s.inbox, visitor)
	return out
}

// PruneNotifications drops expired notifications of every visitor, including
// visitors who never come back for them, and returns how many it dropped.
func (s *Service) PruneNotifications() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for visitor := range s.inbox {
		n += s.pruneLocked(visitor)
	}
	return n
}

func (s *Service) pruneLocked(visitor string) int {
	list := s.inbox[visitor]
	if len(list) == 0 {
		delete(s.inbox, visitor)
		return 0
	}
	cutoff := s.now().Add(-s.ttl)
	kept := list[:0]
	for _, n := range list {
		if n.At.After(cutoff) {
			kept = append(kept, n)
		}
	}
	dropped := len(list) - len(kept)
	if len(kept) == 0 {
		delete(s.inbox, visitor)
		return dropped
	}
	s.inbox[visitor] = kept
	return dropped
}

// Recent lists the visitor's latest actions from the ledger.
func (s *Service) Recent(ctx context.Context, visitor string, limit int64) ([]actionstore.Action, error) {
	if s.ledger == nil {
		return []actionstore.Action{}, nil
	}
	return s.ledger.Recent(ctx, visitor, limit)
}

// Wait blocks until every running action has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels running actions and waits for them.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.stop()
	s.wg.Wait()
}
