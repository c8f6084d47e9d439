// Package auth implements the claim-code / token credential subsystem
// (spec component C): one-shot claim codes that redeem into long-lived
// bearer tokens, with per-agent quotas and constant-time comparison.
//
// There is no background sweeper goroutine. Expired entries are purged
// lazily: on every generate_claim_code call (before inserting) and on
// every lookup (validate/redeem treat an expired entry as absent).
package auth

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"math/big"
	"sync"
	"time"
)

const (
	claimCodeLength = 6
	claimCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// tokenEntropyBytes yields >=128 bits of entropy per token, base32
	// encoded (no padding) so it stays printable and URL-safe.
	tokenEntropyBytes = 20
)

var (
	// ErrUnknownAgent reports that an agent owns no active tokens. RevokeAll
	// does not return it; it reports a count of 0 in that case.
	ErrUnknownAgent = errors.New("auth: agent owns no active tokens")
)

// ClaimCode is a single-use, time-limited credential that upgrades to a
// Token on redemption.
type ClaimCode struct {
	Code      string
	AgentID   string
	Namespace string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

// Token is a long-lived bearer credential bound to one agent/namespace.
type Token struct {
	Value     string
	AgentID   string
	Namespace string
	CreatedAt time.Time
	ExpiresAt time.Time
	Active    bool
}

// Manager is the Token Manager (spec component C). Zero value is not
// usable; construct with NewManager.
type Manager struct {
	mu sync.Mutex

	codeTTL  time.Duration
	tokenTTL time.Duration
	maxPerAgent int

	now func() time.Time

	codes  map[string]*ClaimCode
	tokens map[string]*Token
}

// Config holds the tunable limits of the Manager, mirroring the Bridge's
// auth.* configuration.
type Config struct {
	CodeTTL     time.Duration
	TokenTTL    time.Duration
	MaxTokensPerAgent int
}

// NewManager constructs a Manager with the given limits.
func NewManager(cfg Config) *Manager {
	return &Manager{
		codeTTL:     cfg.CodeTTL,
		tokenTTL:    cfg.TokenTTL,
		maxPerAgent: cfg.MaxTokensPerAgent,
		now:         time.Now,
		codes:       make(map[string]*ClaimCode),
		tokens:      make(map[string]*Token),
	}
}

// SecureCompare exposes the package's constant-time comparison for the
// Bridge's shared-secret authentication mode.
func SecureCompare(a, b string) bool { return secureCompare(a, b) }

// GenerateClaimCode mints a fresh one-shot claim code for agentID in
// namespace, sweeping expired codes first.
func (m *Manager) GenerateClaimCode(agentID, namespace string) (*ClaimCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepCodesLocked()

	code, err := randomCode()
	if err != nil {
		return nil, err
	}
	now := m.now()
	cc := &ClaimCode{
		Code:      code,
		AgentID:   agentID,
		Namespace: namespace,
		CreatedAt: now,
		ExpiresAt: now.Add(m.codeTTL),
	}
	m.codes[code] = cc
	return cc, nil
}

// RedeemClaimCode consumes code if it is known, unused, and unexpired,
// minting a fresh Token for its agent/namespace. It returns (nil, false)
// for unknown, expired, or already-used codes. Redemption is idempotent
// in the sense that a second call for the same code always reports
// failure — it never returns the first redemption's token again.
func (m *Manager) RedeemClaimCode(code string) (*Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cc, ok := m.codes[code]
	if !ok {
		return nil, false
	}
	if cc.Used || m.now().After(cc.ExpiresAt) {
		return nil, false
	}
	cc.Used = true
	return m.generateTokenLocked(cc.AgentID, cc.Namespace), true
}

// GenerateToken mints a fresh Token directly, without a claim code,
// evicting the agent's oldest active token if it is already at quota.
func (m *Manager) GenerateToken(agentID, namespace string) *Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateTokenLocked(agentID, namespace)
}

func (m *Manager) generateTokenLocked(agentID, namespace string) *Token {
	m.evictOldestIfAtQuotaLocked(agentID)

	value, err := randomToken()
	if err != nil {
		// crypto/rand failure is only possible if the OS entropy source
		// is broken; there is nothing sensible to degrade to.
		panic("auth: failed to generate token: " + err.Error())
	}
	now := m.now()
	tok := &Token{
		Value:     value,
		AgentID:   agentID,
		Namespace: namespace,
		CreatedAt: now,
		ExpiresAt: now.Add(m.tokenTTL),
		Active:    true,
	}
	m.tokens[value] = tok
	return tok
}

// evictOldestIfAtQuotaLocked removes the oldest active token belonging to
// agentID if it already owns maxPerAgent of them.
func (m *Manager) evictOldestIfAtQuotaLocked(agentID string) {
	if m.maxPerAgent <= 0 {
		return
	}
	var oldestValue string
	var oldestAt time.Time
	count := 0
	for v, t := range m.tokens {
		if t.AgentID != agentID || !t.Active {
			continue
		}
		count++
		if oldestValue == "" || t.CreatedAt.Before(oldestAt) {
			oldestValue, oldestAt = v, t.CreatedAt
		}
	}
	if count >= m.maxPerAgent && oldestValue != "" {
		delete(m.tokens, oldestValue)
	}
}

// ValidateToken returns the Token for value if it exists, is active, and
// is unexpired; otherwise (nil, false).
func (m *Manager) ValidateToken(value string) (*Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, ok := m.tokens[value]
	if !ok || !tok.Active {
		return nil, false
	}
	if m.now().After(tok.ExpiresAt) {
		return nil, false
	}
	return tok, true
}

// RevokeToken deactivates value. Returns false if it was not known/active.
func (m *Manager) RevokeToken(value string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[value]
	if !ok || !tok.Active {
		return false
	}
	delete(m.tokens, value)
	return true
}

// RevokeAll deactivates every active token owned by agentID, returning
// the count removed.
func (m *Manager) RevokeAll(agentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for v, t := range m.tokens {
		if t.AgentID == agentID {
			delete(m.tokens, v)
			n++
		}
	}
	return n
}

// sweepCodesLocked removes expired claim codes. Called lazily before
// every insert, never on a timer.
func (m *Manager) sweepCodesLocked() {
	now := m.now()
	for code, cc := range m.codes {
		if now.After(cc.ExpiresAt) {
			delete(m.codes, code)
		}
	}
}

func randomCode() (string, error) {
	buf := make([]byte, claimCodeLength)
	alphabetLen := big.NewInt(int64(len(claimCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		buf[i] = claimCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

func randomToken() (string, error) {
	raw := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32.HexEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}
