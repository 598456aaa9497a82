// Package session tracks which wallet account, if any, the client is
// connected as.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/contract"
	"github.com/Mohsinsiddi/w3fund/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// ErrInvalidInterval is returned by Watch for a non-positive interval.
var ErrInvalidInterval = errors.New("watch interval must be positive")

// State of a session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Session is a snapshot of the connection. Address is the zero address
// unless State is Connected.
type Session struct {
	State   State
	Address common.Address
}

// IsConnected reports whether an account is available.
func (s Session) IsConnected() bool { return s.State == Connected }

// Manager owns the session. It is safe for concurrent use.
type Manager struct {
	provider wallet.Provider
	log      zerolog.Logger

	mu      sync.Mutex
	current Session
	// userLeft is set by Disconnect and keeps Watch from reconnecting until
	// the next explicit connect.
	userLeft bool
	subs    map[int]chan Session
	nextSub int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a Disconnected session over provider. A nil provider
// means no wallet is installed.
func NewManager(provider wallet.Provider, opts ...Option) *Manager {
	m := &Manager{
		provider: provider,
		log:      zerolog.Nop(),
		subs:     make(map[int]chan Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the session snapshot.
func (m *Manager) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CheckExistingAuthorization connects silently if the wallet has already
// authorized an account. It never prompts. Without a provider the session
// stays Disconnected and no error is returned.
func (m *Manager) CheckExistingAuthorization(ctx context.Context) (Session, error) {
	if m.provider == nil {
		m.log.Warn().Msg("no wallet provider available, staying disconnected")
		return m.set(Session{State: Disconnected}), nil
	}
	accounts, err := m.provider.Accounts(ctx)
	if err != nil {
		return m.set(Session{State: Disconnected}), fmt.Errorf("checking authorization: %w", err)
	}
	m.rejoin()
	return m.apply(accounts), nil
}

// RequestConnection asks the wallet to authorize an account.
func (m *Manager) RequestConnection(ctx context.Context) (Session, error) {
	if m.provider == nil {
		return m.Current(), wallet.ErrWalletUnavailable
	}

	prev := m.Current()
	m.set(Session{State: Connecting})

	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		if errors.Is(err, wallet.ErrUserRejected) {
			m.log.Info().Msg("connection request declined")
		}
		if prev.State == Connecting {
			prev = Session{State: Disconnected}
		}
		return m.set(prev), err
	}
	m.rejoin()
	s := m.apply(accounts)
	if s.IsConnected() {
		m.log.Info().Str("address", s.Address.Hex()).Msg("wallet connected")
	}
	return s, nil
}

// Disconnect forgets the connected account locally. The wallet's own
// authorization is not revoked.
func (m *Manager) Disconnect() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userLeft = true
	return m.setLocked(Session{State: Disconnected})
}

func (m *Manager) rejoin() {
	m.mu.Lock()
	m.userLeft = false
	m.mu.Unlock()
}

// Subscribe streams session changes until the returned func is called. A
// subscriber that falls behind only sees the latest value.
func (m *Manager) Subscribe() (<-chan Session, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Session, 1)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

// Watch follows wallet events and re-reads Accounts every interval until ctx
// ends. The wallet's answer always wins over local state, so a session
// dropped by a wallet lock reconnects once the wallet reports an account
// again. A Disconnect made locally sticks until the next explicit connect.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) error {
	if m.provider == nil {
		return wallet.ErrWalletUnavailable
	}
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
	events, cancel := m.provider.Subscribe()
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.log.Debug().Str("event", string(ev.Kind)).Int("accounts", len(ev.Accounts)).Msg("wallet event")
			m.follow(ev.Accounts)
		case <-ticker.C:
			accounts, err := m.provider.Accounts(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.log.Warn().Err(err).Msg("reconciling session")
				continue
			}
			m.follow(accounts)
		}
	}
}

// Signer returns a signer for the connected account, or nil when
// disconnected.
func (m *Manager) Signer() contract.Signer {
	s := m.Current()
	if !s.IsConnected() || m.provider == nil {
		return nil
	}
	return wallet.NewSigner(m.provider, s.Address)
}

// follow applies an account list pushed by the wallet. It leaves alone a
// session the user disconnected and one mid-request.
func (m *Manager) follow(accounts []common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userLeft || m.current.State == Connecting {
		return
	}
	after := fromAccounts(accounts)
	if after == m.current {
		return
	}
	switch {
	case after.IsConnected() && !m.current.IsConnected():
		m.log.Info().Str("address", after.Address.Hex()).Msg("wallet reconnected")
	case after.IsConnected():
		m.log.Info().Str("address", after.Address.Hex()).Msg("account changed")
	default:
		m.log.Info().Msg("wallet locked or disconnected")
	}
	m.setLocked(after)
}

func fromAccounts(accounts []common.Address) Session {
	if len(accounts) == 0 {
		return Session{State: Disconnected}
	}
	return Session{State: Connected, Address: accounts[0]}
}

func (m *Manager) apply(accounts []common.Address) Session {
	return m.set(fromAccounts(accounts))
}

func (m *Manager) set(s Session) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(s)
}

func (m *Manager) setLocked(s Session) Session {
	if s == m.current {
		return s
	}
	m.current = s
	for _, ch := range m.subs {
		// Replace any unread value with the newest.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
	return s
}
