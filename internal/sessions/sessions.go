package sessions

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Step string

const (
	StepWithdrawAmount  Step = "withdraw_amount"
	StepWithdrawDetails Step = "withdraw_details"
	StepDeliveryPayload Step = "delivery_payload"
	StepDeliveryExpiry  Step = "delivery_expiry"
	StepBroadcastText   Step = "broadcast_text"
)

var ErrNoSession = errors.New("no active session")

// Session is the partially entered input of one operator.
type Session struct {
	OperatorID int64
	Step       Step
	OrderID    int64
	Amount     decimal.Decimal
	Payload    string
	UpdatedAt  time.Time
}

// Store keeps at most one session per operator. Sessions untouched for longer
// than the TTL are gone.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[int64]Session
}

func NewStore(ttl time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}

	return &Store{
		ttl:      ttl,
		now:      now,
		sessions: make(map[int64]Session),
	}
}

// Begin replaces any session of operatorID with a fresh one at step.
func (s *Store) Begin(operatorID int64, step Step, orderID int64) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := Session{
		OperatorID: operatorID,
		Step:       step,
		OrderID:    orderID,
		UpdatedAt:  s.now(),
	}

	s.sessions[operatorID] = session

	return session
}

func (s *Store) Get(operatorID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.get(operatorID)
}

func (s *Store) get(operatorID int64) (Session, bool) {
	session, ok := s.sessions[operatorID]
	if !ok {
		return Session{}, false
	}

	if s.expired(session) {
		delete(s.sessions, operatorID)
		return Session{}, false
	}

	return session, true
}

// Update applies fn to the live session of operatorID and refreshes its TTL.
func (s *Store) Update(operatorID int64, fn func(*Session)) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.get(operatorID)
	if !ok {
		return Session{}, ErrNoSession
	}

	fn(&session)
	session.OperatorID = operatorID
	session.UpdatedAt = s.now()
	s.sessions[operatorID] = session

	return session, nil
}

func (s *Store) Cancel(operatorID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.get(operatorID)
	delete(s.sessions, operatorID)

	return ok
}

// Commit takes the session of operatorID and runs fn with it. The session is
// removed before fn runs, so concurrent commits of one session run fn once and
// the others get ErrNoSession. When fn fails the session is put back, unless
// the operator began a new one meanwhile. fn runs without the store lock held.
func (s *Store) Commit(operatorID int64, fn func(Session) error) error {
	s.mu.Lock()
	session, ok := s.get(operatorID)
	if ok {
		delete(s.sessions, operatorID)
	}
	s.mu.Unlock()

	if !ok {
		return ErrNoSession
	}

	if err := fn(session); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()

		if _, taken := s.sessions[operatorID]; !taken {
			session.UpdatedAt = s.now()
			s.sessions[operatorID] = session
		}

		return err
	}

	return nil
}

// Sweep drops expired sessions and reports how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped int
	for operatorID, session := range s.sessions {
		if s.expired(session) {
			delete(s.sessions, operatorID)
			dropped++
		}
	}

	return dropped
}

func (s *Store) expired(session Session) bool {
	return s.ttl > 0 && s.now().Sub(session.UpdatedAt) > s.ttl
}
