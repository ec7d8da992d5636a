package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tech-arch1tect/walletauth/config"
	"github.com/tech-arch1tect/walletauth/services/fingerprint"
	"github.com/tech-arch1tect/walletauth/services/jwt"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"go.uber.org/zap"
)

const (
	sessionIDBytes = 32
	createAttempts = 3
	casAttempts    = 3
)

type TokenService interface {
	GenerateToken(claims jwt.Claims) (string, time.Time, error)
	ValidateToken(token string) (*jwt.Claims, error)
}

// SecurityAlert describes a detected hijack attempt.
type SecurityAlert struct {
	Kind          string
	Identity      string
	TokenIdentity string
	SessionID     string
	IPAddress     string
	At            time.Time
}

// Alerter forwards security alerts to a human. Implementations must not block.
type Alerter interface {
	SecurityAlert(ctx context.Context, alert SecurityAlert)
}

// Manager owns the session lifecycle. It holds no locks: every status change
// is a conditional write in the store, so any number of instances may share
// one store.
type Manager struct {
	store   Store
	tokens  TokenService
	logger  *logging.Service
	alerter Alerter

	maxPerIdentity int
	activeTTL      time.Duration
	version        int

	now func() time.Time
}

func NewManager(cfg config.SessionConfig, store Store, tokens TokenService, logger *logging.Service) *Manager {
	return &Manager{
		store:          store,
		tokens:         tokens,
		logger:         logger,
		maxPerIdentity: cfg.MaxPerIdentity,
		activeTTL:      cfg.ActiveTTL,
		version:        cfg.Version,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) SetAlerter(alerter Alerter) {
	m.alerter = alerter
}

// CreateSession mints a session for an identity that has just proven control
// of its wallet. If the identity is at its cap the least recently active
// sessions are evicted first; an eviction failure never fails the sign-in.
func (m *Manager) CreateSession(ctx context.Context, identity string, attrs fingerprint.Attributes) (*Created, error) {
	identity = strings.ToLower(identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}

	now := m.now()
	deviceID := attrs.DeviceID()

	active, err := m.store.ListByStatus(ctx, identity, StatusActive)
	if err != nil {
		m.logger.Error("failed to load active sessions", zap.String("identity", identity), zap.Error(err))
		return nil, storeError(err)
	}
	m.enforceCap(ctx, identity, active, now)

	client := fingerprint.Describe(attrs.UserAgent)
	rec := Record{
		Owner:        identity,
		Identity:     identity,
		DeviceID:     deviceID,
		Status:       StatusActive,
		Version:      m.version,
		IPAddress:    attrs.ClientIP,
		UserAgent:    attrs.UserAgent,
		Browser:      client.Browser,
		OS:           client.OS,
		DeviceClass:  client.DeviceClass,
		CreatedAt:    now,
		LastActiveAt: now,
	}

	for attempt := 1; ; attempt++ {
		rec.SessionID = newSessionID()

		token, expiresAt, err := m.tokens.GenerateToken(jwt.Claims{
			Identity:  identity,
			DeviceID:  deviceID,
			SessionID: rec.SessionID,
			Version:   m.version,
			Status:    string(StatusActive),
		})
		if err != nil {
			return nil, err
		}

		err = m.store.Create(ctx, &rec)
		if errors.Is(err, ErrDuplicateSession) && attempt < createAttempts {
			continue
		}
		if err != nil {
			m.logger.Error("failed to persist session", zap.String("identity", identity), zap.Error(err))
			return nil, storeError(err)
		}

		m.logger.Info("session created",
			zap.String("identity", identity),
			zap.String("session", logging.HashID(rec.SessionID)),
			zap.String("device_id", deviceID))

		return &Created{
			Token:     token,
			SessionID: rec.SessionID,
			ExpiresAt: expiresAt,
			Record:    rec,
		}, nil
	}
}

func (m *Manager) enforceCap(ctx context.Context, identity string, active []Record, now time.Time) {
	live := make([]Record, 0, len(active))
	for _, rec := range active {
		if m.idleTooLong(rec, now) {
			m.bestEffort(ctx, rec, Event{Kind: EventExpire, At: now})
			continue
		}
		live = append(live, rec)
	}

	excess := len(live) - m.maxPerIdentity + 1
	if excess <= 0 {
		return
	}

	sort.SliceStable(live, func(i, j int) bool {
		return live[i].LastActiveAt.Before(live[j].LastActiveAt)
	})
	for _, rec := range live[:excess] {
		m.bestEffort(ctx, rec, Event{Kind: EventEvict, At: now})
		m.logger.Info("session evicted",
			zap.String("identity", identity),
			zap.String("session", logging.HashID(rec.SessionID)))
	}
}

// ValidateSession authorizes a request carrying token. Every error means the
// caller must re-authenticate.
func (m *Manager) ValidateSession(ctx context.Context, token string) (*Validation, error) {
	return m.validate(ctx, token, nil)
}

// ValidateRequest is ValidateSession plus a device anomaly check against the
// attributes of the current request. The check only logs.
func (m *Manager) ValidateRequest(ctx context.Context, token string, attrs fingerprint.Attributes) (*Validation, error) {
	return m.validate(ctx, token, &attrs)
}

func (m *Manager) validate(ctx context.Context, token string, attrs *fingerprint.Attributes) (*Validation, error) {
	claims, err := m.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	identity := strings.ToLower(claims.Identity)
	now := m.now()

	rec, err := m.store.Get(ctx, identity, claims.SessionID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			m.logger.Error("session lookup failed", zap.Error(err))
		}
		return nil, storeError(err)
	}

	if rec.Identity != identity {
		m.handleHijack(ctx, *rec, identity, attrs, now)
		return nil, ErrSecurityRevoked
	}

	if rec.Status != StatusActive {
		if _, err := Transition(*rec, Event{Kind: EventSecurityRevoke, At: now}); err == nil {
			m.bestEffort(ctx, *rec, Event{Kind: EventSecurityRevoke, At: now})
		}
		return nil, fmt.Errorf("%w: %s", ErrSessionInactive, rec.Status)
	}

	if rec.Version != m.version {
		return nil, fmt.Errorf("%w: record %d, current %d", ErrStaleVersion, rec.Version, m.version)
	}

	if m.idleTooLong(*rec, now) {
		m.bestEffort(ctx, *rec, Event{Kind: EventExpire, At: now})
		return nil, ErrSessionExpired
	}

	touched, err := m.store.Touch(ctx, identity, rec.SessionID, now)
	if err != nil {
		m.logger.Error("failed to refresh session", zap.Error(err))
		return nil, storeError(err)
	}
	if !touched {
		// revoked between our read and the refresh
		return nil, ErrSessionInactive
	}

	if attrs != nil {
		if current := attrs.DeviceID(); current != rec.DeviceID {
			m.logger.Warn("session used from a different device fingerprint",
				zap.String("identity", identity),
				zap.String("session", logging.HashID(rec.SessionID)),
				zap.String("recorded_device_id", rec.DeviceID),
				zap.String("current_device_id", current),
				zap.String("ip", attrs.ClientIP))
		}
	}

	rec.LastActiveAt = now
	return &Validation{
		Identity:  identity,
		SessionID: rec.SessionID,
		DeviceID:  rec.DeviceID,
		Record:    *rec,
	}, nil
}

func (m *Manager) handleHijack(ctx context.Context, rec Record, tokenIdentity string, attrs *fingerprint.Attributes, now time.Time) {
	m.bestEffort(ctx, rec, Event{Kind: EventSecurityRevoke, At: now})

	alert := SecurityAlert{
		Kind:          "identity_mismatch",
		Identity:      rec.Identity,
		TokenIdentity: tokenIdentity,
		SessionID:     logging.HashID(rec.SessionID),
		At:            now,
	}
	if attrs != nil {
		alert.IPAddress = attrs.ClientIP
	}

	m.logger.Security(alert.Kind, "session identity does not match token identity",
		zap.String("record_identity", alert.Identity),
		zap.String("token_identity", alert.TokenIdentity),
		zap.String("session", alert.SessionID),
		zap.String("ip", alert.IPAddress))

	if m.alerter != nil {
		m.alerter.SecurityAlert(ctx, alert)
	}
}

// RevokeSession deactivates one session. Revoking a missing or already
// deactivated session is not an error.
func (m *Manager) RevokeSession(ctx context.Context, identity, sessionID string, reason Reason) error {
	_, err := m.revoke(ctx, strings.ToLower(identity), sessionID, reason)
	return err
}

// revoke reports whether this call deactivated the session. A session that is
// missing or already out of service is not an error.
func (m *Manager) revoke(ctx context.Context, identity, sessionID string, reason Reason) (bool, error) {
	kind, err := eventForReason(reason)
	if err != nil {
		return false, err
	}

	err = m.apply(ctx, identity, sessionID, Event{Kind: kind, At: m.now()})
	switch {
	case err == nil:
		m.logger.Info("session revoked",
			zap.String("identity", identity),
			zap.String("session", logging.HashID(sessionID)),
			zap.String("reason", string(reason)))
		return true, nil
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrInvalidTransition):
		return false, nil
	default:
		return false, err
	}
}

// RevokeAllSessions logs an identity out everywhere and returns how many
// sessions this call deactivated. Sessions revoked concurrently by someone
// else are not counted.
func (m *Manager) RevokeAllSessions(ctx context.Context, identity string) (int, error) {
	identity = strings.ToLower(identity)

	var revoked int
	for _, status := range []Status{StatusActive, StatusSuspended} {
		records, err := m.store.ListByStatus(ctx, identity, status)
		if err != nil {
			return revoked, storeError(err)
		}
		for _, rec := range records {
			changed, err := m.revoke(ctx, identity, rec.SessionID, ReasonLogout)
			if err != nil {
				return revoked, err
			}
			if changed {
				revoked++
			}
		}
	}

	m.logger.Info("all sessions revoked", zap.String("identity", identity), zap.Int("count", revoked))
	return revoked, nil
}

// BlacklistSession is terminal. Blacklisting an already blacklisted session
// is a no-op.
func (m *Manager) BlacklistSession(ctx context.Context, identity, sessionID, reason string) error {
	identity = strings.ToLower(identity)

	err := m.apply(ctx, identity, sessionID, Event{Kind: EventBlacklist, At: m.now(), Reason: reason})
	if errors.Is(err, ErrInvalidTransition) {
		if rec, getErr := m.store.Get(ctx, identity, sessionID); getErr == nil && rec.Status == StatusBlacklisted {
			return nil
		}
	}
	if err != nil {
		return err
	}

	m.logger.Warn("session blacklisted",
		zap.String("identity", identity),
		zap.String("session", logging.HashID(sessionID)),
		zap.String("reason", reason))
	return nil
}

// SuspendSession freezes an active session. Its next use deactivates it.
func (m *Manager) SuspendSession(ctx context.Context, identity, sessionID string) error {
	identity = strings.ToLower(identity)

	if err := m.apply(ctx, identity, sessionID, Event{Kind: EventSuspend, At: m.now()}); err != nil {
		return err
	}

	m.logger.Warn("session suspended",
		zap.String("identity", identity),
		zap.String("session", logging.HashID(sessionID)))
	return nil
}

// ListActiveSessions returns the sessions an identity could still use, most
// recently active first.
func (m *Manager) ListActiveSessions(ctx context.Context, identity string) ([]Record, error) {
	records, err := m.store.ListByStatus(ctx, strings.ToLower(identity), StatusActive)
	if err != nil {
		return nil, storeError(err)
	}

	now := m.now()
	live := make([]Record, 0, len(records))
	for _, rec := range records {
		if !m.idleTooLong(rec, now) {
			live = append(live, rec)
		}
	}
	sortByLastActive(live)
	return live, nil
}

// apply runs ev through Transition and writes the result with a
// compare-and-set on the status it was computed from, re-reading on conflict.
// apply returns nil only when this call moved the session; a lost race that
// leaves the session in a sink surfaces as ErrInvalidTransition on the retry.
func (m *Manager) apply(ctx context.Context, identity, sessionID string, ev Event) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		rec, err := m.store.Get(ctx, identity, sessionID)
		if err != nil {
			return storeError(err)
		}

		next, err := Transition(*rec, ev)
		if err != nil {
			return err
		}

		ok, err := m.store.CompareAndSetStatus(ctx, identity, sessionID, rec.Status, next)
		if err != nil {
			return storeError(err)
		}
		if ok {
			return nil
		}
	}
	return ErrConcurrentUpdate
}

func (m *Manager) bestEffort(ctx context.Context, rec Record, ev Event) {
	err := m.apply(ctx, rec.Owner, rec.SessionID, ev)
	if err != nil && !errors.Is(err, ErrInvalidTransition) {
		m.logger.Warn("session transition failed",
			zap.String("event", string(ev.Kind)),
			zap.String("session", logging.HashID(rec.SessionID)),
			zap.Error(err))
	}
}

func (m *Manager) idleTooLong(rec Record, now time.Time) bool {
	return now.Sub(rec.LastActiveAt) > m.activeTTL
}

func storeError(err error) error {
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func newSessionID() string {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("session: reading random session id: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
