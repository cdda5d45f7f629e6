// Package checklist implements the pre-trade gate: an ephemeral per-session
// state machine over a strategy's rule list that authorizes at most one
// trade entry per full completion. Sessions live in memory only; a restart
// or a strategy switch discards them, which is the intended lifecycle.
package checklist

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrStrategyNotFound    = errors.New("strategy not found or has no checklist")
	ErrSessionNotFound     = errors.New("checklist session not found")
	ErrIndexOutOfRange     = errors.New("checklist item index out of range")
	ErrRiskLocked          = errors.New("trading is suspended by the risk profile")
	ErrChecklistIncomplete = errors.New("checklist must be fully completed before opening a trade")
	ErrInvalidToken        = errors.New("invalid or already used authorization token")
)

// Catalog is the read-only strategy source the gate pulls checklists from
type Catalog interface {
	GetChecklist(userID, strategyID string) ([]string, error)
}

// RiskView exposes the live lock state of a user's risk profile
type RiskView interface {
	IsLocked(userID string) (bool, error)
}

// Item is a single checklist rule and its acknowledgement flag
type Item struct {
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

// Session tracks a user's progress through one strategy's checklist
type Session struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	StrategyID string    `json:"strategy_id"`
	Items      []Item    `json:"items"`
	Unlocked   bool      `json:"unlocked"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Session) recompute() {
	if len(s.Items) == 0 {
		s.Unlocked = false
		return
	}
	for _, item := range s.Items {
		if !item.Checked {
			s.Unlocked = false
			return
		}
	}
	s.Unlocked = true
}

type tokenGrant struct {
	userID     string
	strategyID string
}

// Authorization is a granted trade entry: a single-use token bound to the
// strategy whose checklist was completed
type Authorization struct {
	Token      string `json:"authorization_token"`
	StrategyID string `json:"strategy_id"`
}

// Manager owns all live checklist sessions and the single-use tokens they
// issue. Each user has at most one session; selecting a strategy replaces it.
type Manager struct {
	catalog Catalog
	risk    RiskView

	mu       sync.Mutex
	sessions map[string]*Session // by session id
	byUser   map[string]string   // user id -> session id
	tokens   map[string]tokenGrant
}

// NewManager creates a checklist gate over the given catalog and risk view
func NewManager(catalog Catalog, risk RiskView) *Manager {
	return &Manager{
		catalog:  catalog,
		risk:     risk,
		sessions: make(map[string]*Session),
		byUser:   make(map[string]string),
		tokens:   make(map[string]tokenGrant),
	}
}

// SelectStrategy starts a fresh session for the strategy's checklist with
// every item unchecked, discarding any previous session the user had.
func (m *Manager) SelectStrategy(userID, strategyID string) (*Session, error) {
	items, err := m.catalog.GetChecklist(userID, strategyID)
	if err != nil || len(items) == 0 {
		return nil, ErrStrategyNotFound
	}

	session := &Session{
		SessionID:  uuid.New().String(),
		UserID:     userID,
		StrategyID: strategyID,
		Items:      make([]Item, len(items)),
		CreatedAt:  time.Now(),
	}
	for i, text := range items {
		session.Items[i] = Item{Text: text}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if previous, ok := m.byUser[userID]; ok {
		delete(m.sessions, previous)
	}
	m.sessions[session.SessionID] = session
	m.byUser[userID] = session.SessionID

	return session, nil
}

// ToggleItem flips one item's acknowledgement flag and recomputes whether
// the session is fully completed. While the risk profile is locked the
// toggle is inert rather than an error: the checklist is read-only during a
// suspension and the client should not see a fault for it.
func (m *Manager) ToggleItem(userID, sessionID string, index int) (*Session, error) {
	locked, err := m.risk.IsLocked(userID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok || session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	if index < 0 || index >= len(session.Items) {
		return nil, ErrIndexOutOfRange
	}

	if locked {
		return session, nil
	}

	session.Items[index].Checked = !session.Items[index].Checked
	session.recompute()

	return session, nil
}

// AuthorizeOpen issues a single-use trade-entry token once every item is
// checked. The risk lock is re-read at the instant of the call, not cached
// from toggle time. On success the session is discarded, so a second
// authorization requires working through a fresh checklist.
func (m *Manager) AuthorizeOpen(userID, sessionID string) (*Authorization, error) {
	locked, err := m.risk.IsLocked(userID)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, ErrRiskLocked
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok || session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	if !session.Unlocked {
		return nil, ErrChecklistIncomplete
	}

	grant := &Authorization{
		Token:      uuid.New().String(),
		StrategyID: session.StrategyID,
	}
	m.tokens[grant.Token] = tokenGrant{
		userID:     userID,
		strategyID: session.StrategyID,
	}

	delete(m.sessions, sessionID)
	delete(m.byUser, userID)

	return grant, nil
}

// Redeem consumes an authorization token. A token is valid for exactly one
// redemption and only for the user/strategy pair it was issued to; any
// presentation consumes it.
func (m *Manager) Redeem(token, userID, strategyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	grant, ok := m.tokens[token]
	if !ok {
		return ErrInvalidToken
	}
	delete(m.tokens, token)

	if grant.userID != userID || grant.strategyID != strategyID {
		return ErrInvalidToken
	}
	return nil
}
