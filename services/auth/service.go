package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tech-arch1tect/walletauth/config"
	"github.com/tech-arch1tect/walletauth/services/fingerprint"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"github.com/tech-arch1tect/walletauth/services/metrics"
	"github.com/tech-arch1tect/walletauth/services/siwe"
	"github.com/tech-arch1tect/walletauth/session"
	"go.uber.org/zap"
)

// Errors a client may see. Everything else stays in the logs.
var (
	ErrVerificationFailed = errors.New("verification failed")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrUnavailable        = errors.New("authentication temporarily unavailable")
	ErrInvalidAddress     = errors.New("invalid wallet address")
)

type SignInRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
	// Address is optional; when set it must match the signer.
	Address string `json:"address,omitempty"`
}

type Service struct {
	config   *config.Config
	issuer   *siwe.Issuer
	verifier *siwe.Verifier
	sessions *session.Manager
	logger   *logging.Service
	metrics  *metrics.Metrics
	admins   map[string]bool
	now      func() time.Time
}

func NewService(cfg *config.Config, issuer *siwe.Issuer, verifier *siwe.Verifier, sessions *session.Manager, logger *logging.Service) *Service {
	admins := make(map[string]bool, len(cfg.Admin.Addresses))
	for _, addr := range cfg.Admin.Addresses {
		if addr = strings.TrimSpace(addr); addr != "" {
			admins[strings.ToLower(addr)] = true
		}
	}

	return &Service{
		config:   cfg,
		issuer:   issuer,
		verifier: verifier,
		sessions: sessions,
		logger:   logger,
		admins:   admins,
		now:      time.Now,
	}
}

// SetMetrics enables outcome counters. A nil value turns them off.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Service) IssueNonce(ctx context.Context) (*siwe.Challenge, error) {
	challenge, err := s.issuer.Issue(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	s.metrics.NonceIssued()
	return challenge, nil
}

// MessageFor renders the message a wallet at address should sign for the
// given challenge.
func (s *Service) MessageFor(address string, chainID int64, challenge *siwe.Challenge) (string, error) {
	if !siwe.IsHexAddress(address) {
		return "", ErrInvalidAddress
	}
	msg := siwe.NewMessage(s.config.SIWE, address, chainID, challenge.Nonce, s.now())
	msg.ExpirationTime = &challenge.ExpiresAt

	rendered, err := msg.Render()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return rendered, nil
}

// SignIn verifies a signed message and opens a session for its signer. Every
// verification failure is reported as ErrVerificationFailed.
func (s *Service) SignIn(ctx context.Context, req SignInRequest, attrs fingerprint.Attributes) (*session.Created, error) {
	started := time.Now()

	if req.Message == "" || req.Signature == "" {
		s.metrics.SignIn(metrics.ResultRejected, started)
		return nil, ErrVerificationFailed
	}

	identity, err := s.verifier.Verify(ctx, req.Message, req.Signature, req.Address)
	if err != nil {
		if errors.Is(err, siwe.ErrNonceStoreUnavailable) {
			s.logger.Error("nonce store unavailable during sign-in", zap.Error(err))
			s.metrics.SignIn(metrics.ResultUnavailable, started)
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		s.logger.Info("sign-in rejected",
			zap.String("ip", attrs.ClientIP),
			zap.Error(err))
		s.metrics.SignIn(metrics.ResultRejected, started)
		return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	created, err := s.sessions.CreateSession(ctx, identity.Address, attrs)
	if err != nil {
		s.logger.Error("failed to create session after verified sign-in",
			zap.String("identity", identity.Address),
			zap.Error(err))
		s.metrics.SignIn(metrics.ResultUnavailable, started)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	s.metrics.SignIn(metrics.ResultSuccess, started)

	s.logger.Info("wallet signed in",
		zap.String("identity", identity.Address),
		zap.Int64("chain_id", identity.ChainID),
		zap.String("ip", attrs.ClientIP))

	return created, nil
}

// Authenticate validates a presented token. Any failure, including a
// detected hijack or an unreachable store, is ErrUnauthenticated.
func (s *Service) Authenticate(ctx context.Context, token string, attrs fingerprint.Attributes) (*session.Validation, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	validation, err := s.sessions.ValidateRequest(ctx, token, attrs)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrStoreUnavailable):
			s.logger.Error("session store unavailable, failing closed", zap.Error(err))
			s.metrics.Validation(metrics.ResultUnavailable)
		case IsSecurityRevoked(err):
			s.metrics.Validation(metrics.ResultSecurityRevoked)
			s.metrics.Revoked(string(session.ReasonSecurity), 1)
		default:
			s.logger.Debug("session rejected", zap.Error(err))
			s.metrics.Validation(metrics.ResultRejected)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	s.metrics.Validation(metrics.ResultSuccess)
	return validation, nil
}

// IsSecurityRevoked reports whether err came from hijack detection. Clients
// must not be told; it is for logging and metrics only.
func IsSecurityRevoked(err error) bool {
	return errors.Is(err, session.ErrSecurityRevoked)
}

func (s *Service) Logout(ctx context.Context, identity, sessionID string) error {
	if err := s.sessions.RevokeSession(ctx, identity, sessionID, session.ReasonLogout); err != nil {
		return err
	}
	s.metrics.Revoked(string(session.ReasonLogout), 1)
	return nil
}

func (s *Service) LogoutAll(ctx context.Context, identity string) (int, error) {
	revoked, err := s.sessions.RevokeAllSessions(ctx, identity)
	s.metrics.Revoked(string(session.ReasonLogout), revoked)
	return revoked, err
}

// Sessions lists the identity's usable sessions and flags the caller's own.
func (s *Service) Sessions(ctx context.Context, identity, currentSessionID string) ([]session.Record, error) {
	records, err := s.sessions.ListActiveSessions(ctx, identity)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Current = records[i].SessionID == currentSessionID
	}
	return records, nil
}

func (s *Service) Blacklist(ctx context.Context, admin, identity, sessionID, reason string) error {
	if err := s.sessions.BlacklistSession(ctx, identity, sessionID, reason); err != nil {
		return err
	}
	s.metrics.Revoked("blacklisted", 1)
	s.logger.Warn("admin blacklisted session",
		zap.String("admin", admin),
		zap.String("identity", strings.ToLower(identity)),
		zap.String("session", logging.HashID(sessionID)))
	return nil
}

func (s *Service) Suspend(ctx context.Context, admin, identity, sessionID string) error {
	if err := s.sessions.SuspendSession(ctx, identity, sessionID); err != nil {
		return err
	}
	s.metrics.Revoked("suspended", 1)
	s.logger.Warn("admin suspended session",
		zap.String("admin", admin),
		zap.String("identity", strings.ToLower(identity)),
		zap.String("session", logging.HashID(sessionID)))
	return nil
}

func (s *Service) IsAdmin(identity string) bool {
	return s.admins[strings.ToLower(identity)]
}
