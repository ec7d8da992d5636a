package siwe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tech-arch1tect/walletauth/config"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"go.uber.org/zap"
)

var (
	ErrDomainMismatch  = errors.New("message domain does not match this service")
	ErrAddressMismatch = errors.New("message address does not match claimed address")
	ErrMessageExpired  = errors.New("message is outside its freshness window")
)

type VerifiedIdentity struct {
	// Address is lowercase.
	Address string
	ChainID int64
	Nonce   string
	Message *Message
}

type Verifier struct {
	domain    string
	window    time.Duration
	clockSkew time.Duration
	nonces    NonceStore
	logger    *logging.Service
	now       func() time.Time
}

func NewVerifier(cfg config.SIWEConfig, nonces NonceStore, logger *logging.Service) *Verifier {
	return &Verifier{
		domain:    cfg.Domain,
		window:    cfg.NonceWindow,
		clockSkew: cfg.ClockSkew,
		nonces:    nonces,
		logger:    logger,
		now:       time.Now,
	}
}

// Verify checks a signed sign-in message. The nonce is consumed last, so a
// message that fails any other check does not burn its challenge. An empty
// claimedAddress means the caller has no separate claim and the address inside
// the message is used.
func (v *Verifier) Verify(ctx context.Context, message, signature, claimedAddress string) (*VerifiedIdentity, error) {
	msg, err := ParseMessage(message)
	if err != nil {
		return nil, v.reject("malformed", err)
	}

	if !strings.EqualFold(msg.Domain, v.domain) {
		return nil, v.reject("domain", fmt.Errorf("%w: got %q", ErrDomainMismatch, msg.Domain))
	}

	if claimedAddress == "" {
		claimedAddress = msg.Address
	}
	if !strings.EqualFold(msg.Address, claimedAddress) {
		return nil, v.reject("address", ErrAddressMismatch)
	}

	now := v.now()
	if err := v.checkFreshness(msg, now); err != nil {
		return nil, v.reject("freshness", err)
	}

	// the signer must be the message address, which already equals the claim
	if err := msg.verifySignature(signature); err != nil {
		return nil, v.reject("signature", err)
	}

	if err := v.nonces.Consume(ctx, msg.Nonce, now); err != nil {
		if errors.Is(err, ErrNonceExpired) {
			err = fmt.Errorf("%w: %v", ErrMessageExpired, err)
		}
		return nil, v.reject("nonce", err)
	}

	identity := &VerifiedIdentity{
		Address: NormalizeAddress(msg.Address),
		ChainID: msg.ChainID,
		Nonce:   msg.Nonce,
		Message: msg,
	}

	v.logger.Info("sign-in message verified",
		zap.String("address", identity.Address),
		zap.Int64("chain_id", identity.ChainID))

	return identity, nil
}

func (v *Verifier) checkFreshness(msg *Message, now time.Time) error {
	if msg.IssuedAt.Before(now.Add(-v.window)) {
		return fmt.Errorf("%w: issued at %s", ErrMessageExpired, msg.IssuedAt.Format(time.RFC3339))
	}
	if msg.IssuedAt.After(now.Add(v.clockSkew)) {
		return fmt.Errorf("%w: issued in the future", ErrMessageExpired)
	}
	// Expiration Time and Not Before carry no skew allowance.
	return msg.validAt(now)
}

func (v *Verifier) reject(stage string, err error) error {
	v.logger.Warn("sign-in verification failed",
		zap.String("stage", stage),
		zap.Error(err))
	return err
}
