package session

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/inky-tools/inkybot/internal/explorer"
)

// Flow identifies which conversation a user is in the middle of.
type Flow int

const (
	FlowNone Flow = iota
	FlowBuy
	FlowSell
	FlowWithdraw
)

func (f Flow) String() string {
	switch f {
	case FlowBuy:
		return "buy"
	case FlowSell:
		return "sell"
	case FlowWithdraw:
		return "withdraw"
	default:
		return "none"
	}
}

// State is the step a flow is waiting on. Which states are reachable
// depends on the flow.
type State int

const (
	StateIdle State = iota
	StateAwaitToken
	StateAwaitAmount
	StateAwaitConfirm
	StateAwaitAssetType
	StateAwaitRecipient
	StateAwaitTokenSelection
)

// Session holds one user's in-flight conversation. Entering a flow always
// starts from a zeroed session, so data from an abandoned flow can never
// leak into the next one.
type Session struct {
	UserID int64
	Flow   Flow
	State  State

	// Buy and sell.
	Token         common.Address
	TokenSymbol   string
	TokenDecimals int
	// Amount in human units; converted to the smallest unit at confirm.
	Amount decimal.Decimal

	// Sell: the balance quoted when the token was chosen, reused for
	// percentage shortcuts and the insufficient-balance check.
	TokenBalance decimal.Decimal

	// Withdraw.
	WithdrawETH bool
	Recipient   common.Address
	// Balances listed when entering token selection; the chosen token
	// must be one of these.
	Balances []explorer.TokenBalance

	touched time.Time
}

// Store keeps sessions in memory keyed by user, expiring them after a
// period of inactivity.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	ttl      time.Duration
	log      *zap.Logger
}

func NewStore(ttl time.Duration, log *zap.Logger) *Store {
	return &Store{sessions: make(map[int64]*Session), ttl: ttl, log: log}
}

// Begin discards any existing session for the user and starts a fresh one
// in the given flow.
func (s *Store) Begin(userID int64, flow Flow, state State) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &Session{UserID: userID, Flow: flow, State: state, touched: time.Now()}
	s.sessions[userID] = sess
	return sess
}

// Get returns the user's live session, or nil if none exists or it has
// expired. Access refreshes the expiry clock.
func (s *Store) Get(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	if time.Since(sess.touched) > s.ttl {
		delete(s.sessions, userID)
		return nil
	}
	sess.touched = time.Now()
	return sess
}

// Clear drops the user's session, if any.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Run sweeps expired sessions until ctx is done, so abandoned flows do not
// accumulate. Lookup-side expiry in Get already guarantees correctness;
// the sweep only bounds memory.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, sess := range s.sessions {
		if now.Sub(sess.touched) > s.ttl {
			delete(s.sessions, id)
			s.log.Debug("session expired", zap.Int64("user_id", id), zap.String("flow", sess.Flow.String()))
		}
	}
}
