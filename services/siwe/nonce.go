package siwe

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tech-arch1tect/walletauth/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNonceUnknown          = errors.New("nonce was never issued")
	ErrNonceReused           = errors.New("nonce already consumed")
	ErrNonceExpired          = errors.New("nonce has expired")
	ErrNonceExists           = errors.New("nonce already issued")
	ErrNonceStoreUnavailable = errors.New("nonce store unavailable")
)

// NonceStore records issued challenges. Consume must be atomic: of any number
// of concurrent calls for one nonce, at most one succeeds.
type NonceStore interface {
	Issue(ctx context.Context, nonce string, expiresAt time.Time) error
	Consume(ctx context.Context, nonce string, now time.Time) error
	Purge(ctx context.Context, now time.Time) (int64, error)
}

type memoryNonce struct {
	expiresAt time.Time
	used      bool
}

// MemoryNonceStore keeps consumed nonces until they expire so that replays
// inside the window are reported as reuse.
type MemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]*memoryNonce
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{nonces: make(map[string]*memoryNonce)}
}

func (m *MemoryNonceStore) Issue(_ context.Context, nonce string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.nonces[nonce]; exists {
		return ErrNonceExists
	}
	m.nonces[nonce] = &memoryNonce{expiresAt: expiresAt}
	return nil
}

func (m *MemoryNonceStore) Consume(_ context.Context, nonce string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.nonces[nonce]
	switch {
	case !exists:
		return ErrNonceUnknown
	case entry.used:
		return ErrNonceReused
	case !now.Before(entry.expiresAt):
		return ErrNonceExpired
	}

	entry.used = true
	return nil
}

func (m *MemoryNonceStore) Purge(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for nonce, entry := range m.nonces {
		if !now.Before(entry.expiresAt) {
			delete(m.nonces, nonce)
			purged++
		}
	}
	return purged, nil
}

type Nonce struct {
	Value     string     `json:"value" gorm:"primaryKey;size:128"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null;index"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (Nonce) TableName() string {
	return "siwe_nonces"
}

// GormNonceStore consumes nonces with a single conditional UPDATE, so it is
// safe across several service instances sharing one database.
type GormNonceStore struct {
	db *gorm.DB
}

func NewGormNonceStore(db *gorm.DB) *GormNonceStore {
	return &GormNonceStore{db: db}
}

func (g *GormNonceStore) Issue(ctx context.Context, nonce string, expiresAt time.Time) error {
	err := g.db.WithContext(ctx).Create(&Nonce{Value: nonce, ExpiresAt: expiresAt.UTC()}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrNonceExists
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNonceStoreUnavailable, err)
	}
	return nil
}

func (g *GormNonceStore) Consume(ctx context.Context, nonce string, now time.Time) error {
	now = now.UTC()
	res := g.db.WithContext(ctx).Model(&Nonce{}).
		Where("value = ? AND used_at IS NULL AND expires_at > ?", nonce, now).
		Update("used_at", now)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrNonceStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var existing Nonce
	err := g.db.WithContext(ctx).Where("value = ?", nonce).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNonceUnknown
	case err != nil:
		return fmt.Errorf("%w: %v", ErrNonceStoreUnavailable, err)
	case existing.UsedAt != nil:
		return ErrNonceReused
	default:
		return ErrNonceExpired
	}
}

func (g *GormNonceStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	res := g.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&Nonce{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrNonceStoreUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}

type Challenge struct {
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issuer hands out single-use challenges. Nonces take no client input.
type Issuer struct {
	store  NonceStore
	bytes  int
	window time.Duration
	logger *logging.Service
	now    func() time.Time
}

func NewIssuer(store NonceStore, nonceBytes int, window time.Duration, logger *logging.Service) *Issuer {
	return &Issuer{
		store:  store,
		bytes:  nonceBytes,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

func (i *Issuer) Issue(ctx context.Context) (*Challenge, error) {
	buf := make([]byte, i.bytes)
	if _, err := rand.Read(buf); err != nil {
		// no usable CSPRNG; nothing here can be trusted
		panic(fmt.Sprintf("siwe: reading random nonce: %v", err))
	}

	challenge := &Challenge{
		Nonce:     hex.EncodeToString(buf),
		ExpiresAt: i.now().Add(i.window),
	}

	if err := i.store.Issue(ctx, challenge.Nonce, challenge.ExpiresAt); err != nil {
		i.logger.Error("failed to record nonce", zap.Error(err))
		return nil, fmt.Errorf("failed to record nonce: %w", err)
	}

	i.logger.Debug("nonce issued",
		zap.String("nonce_hash", logging.HashID(challenge.Nonce)),
		zap.Time("expires_at", challenge.ExpiresAt))

	return challenge, nil
}
