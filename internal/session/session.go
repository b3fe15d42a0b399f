package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/pos-agent/pkg/auth"
	"github.com/angelmondragon/pos-agent/pkg/config"
	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
	"github.com/angelmondragon/pos-agent/pkg/logger"
)

// Cashier is the signed-in operator, limited to what checkout needs.
type Cashier struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	BranchID string `json:"branchId,omitempty"`
}

// SyncSummary is the last reported synchronization outcome.
type SyncSummary struct {
	Success int       `json:"success"`
	Failed  int       `json:"failed"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Context is the application context of one cashier session. It is created
// at sign-in and discarded at sign-out.
type Context struct {
	Cashier      Cashier      `json:"cashier"`
	TerminalID   string       `json:"terminalId"`
	StartedAt    time.Time    `json:"startedAt"`
	ExpiresAt    *time.Time   `json:"expiresAt,omitempty"`
	PendingCount int64        `json:"pendingCount"`
	LastSync     *SyncSummary `json:"lastSync,omitempty"`
}

type ManagerParams struct {
	JWT        config.JWTConfig
	Logger     *logger.Logger
	TerminalID string
	Now        func() time.Time
}

// Manager owns the session lifecycle. The pending count and last sync summary
// outlive a sign-out because they describe the terminal, not the cashier.
type Manager struct {
	jwt        config.JWTConfig
	logg       *logger.Logger
	terminalID string
	now        func() time.Time

	mu       sync.RWMutex
	current  *Context
	pending  int64
	lastSync *SyncSummary
}

func NewManager(params ManagerParams) (*Manager, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(params.JWT.Secret) == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		jwt:        params.JWT,
		logg:       params.Logger,
		terminalID: params.TerminalID,
		now:        now,
	}, nil
}

// Start opens a session from a back-office token, replacing any open one.
func (m *Manager) Start(ctx context.Context, token string) (*Context, error) {
	claims, err := auth.ParseCashierToken(m.jwt, strings.TrimSpace(token))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid session token")
	}

	sess := &Context{
		Cashier: Cashier{
			ID:       claims.CashierID,
			Name:     claims.CashierName,
			BranchID: claims.BranchID,
		},
		TerminalID: m.terminalID,
		StartedAt:  m.now().UTC(),
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time.UTC()
		sess.ExpiresAt = &exp
	}

	m.mu.Lock()
	m.current = sess
	out := m.snapshotLocked()
	m.mu.Unlock()

	ctx = m.logg.WithCashierID(ctx, sess.Cashier.ID)
	ctx = m.logg.WithBranchID(ctx, sess.Cashier.BranchID)
	m.logg.Info(ctx, "cashier session started")
	return out, nil
}

// End closes the current session.
func (m *Manager) End(ctx context.Context) {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if prev != nil {
		m.logg.Info(m.logg.WithCashierID(ctx, prev.Cashier.ID), "cashier session ended")
	}
}

// Current returns a copy of the open session or UNAUTHORIZED.
func (m *Manager) Current() (*Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "no cashier signed in")
	}
	if m.current.ExpiresAt != nil && !m.now().Before(*m.current.ExpiresAt) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "cashier session expired")
	}
	return m.snapshotLocked(), nil
}

// Cashier returns the signed-in cashier.
func (m *Manager) Cashier() (Cashier, error) {
	sess, err := m.Current()
	if err != nil {
		return Cashier{}, err
	}
	return sess.Cashier, nil
}

// PendingCount is the last observed offline queue depth.
func (m *Manager) PendingCount() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pending
}

// OnPendingCount matches the offline queue's count listener signature.
func (m *Manager) OnPendingCount(_ context.Context, _, current int64) {
	m.mu.Lock()
	m.pending = current
	m.mu.Unlock()
}

// RecordSync stores the latest sync outcome for display.
func (m *Manager) RecordSync(summary SyncSummary) {
	if summary.At.IsZero() {
		summary.At = m.now().UTC()
	}
	m.mu.Lock()
	m.lastSync = &summary
	m.mu.Unlock()
}

// LastSync returns the latest sync outcome, if any.
func (m *Manager) LastSync() *SyncSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastSync == nil {
		return nil
	}
	out := *m.lastSync
	return &out
}

func (m *Manager) snapshotLocked() *Context {
	out := *m.current
	out.PendingCount = m.pending
	if m.lastSync != nil {
		last := *m.lastSync
		out.LastSync = &last
	}
	return &out
}
