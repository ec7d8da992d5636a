package session

import (
	"time"
)

type Status string

const (
	StatusActive      Status = "active"
	StatusInactive    Status = "inactive"
	StatusBlacklisted Status = "blacklisted"
	StatusSuspended   Status = "suspended"
)

type Reason string

const (
	ReasonLogout   Reason = "logout"
	ReasonExpired  Reason = "expired"
	ReasonSecurity Reason = "security"
	ReasonEvicted  Reason = "evicted"
)

// Record is one wallet session. The store key is (Owner, SessionID); Owner is
// the identity the record was filed under and Identity the principal stored in
// it. The two only differ if the record was corrupted, which validation treats
// as a hijack.
type Record struct {
	Owner     string `json:"-" gorm:"primaryKey;size:42"`
	SessionID string `json:"session_id" gorm:"primaryKey;size:64"`
	Identity  string `json:"identity" gorm:"size:42;not null;index"`
	DeviceID  string `json:"device_id" gorm:"size:64;not null"`
	Status    Status `json:"status" gorm:"size:16;not null;index"`
	Version   int    `json:"version" gorm:"not null"`

	IPAddress   string `json:"ip_address" gorm:"size:45"`
	UserAgent   string `json:"user_agent" gorm:"size:500"`
	Browser     string `json:"browser" gorm:"size:100"`
	OS          string `json:"os" gorm:"size:100"`
	DeviceClass string `json:"device_class" gorm:"size:20"`

	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"not null;index"`

	DeactivatedAt      *time.Time `json:"deactivated_at,omitempty"`
	DeactivationReason Reason     `json:"deactivation_reason,omitempty" gorm:"size:16"`
	BlacklistedAt      *time.Time `json:"blacklisted_at,omitempty"`
	BlacklistReason    string     `json:"blacklist_reason,omitempty" gorm:"size:255"`

	Current bool `json:"current" gorm:"-"`
}

func (Record) TableName() string {
	return "wallet_sessions"
}

// Created is what a successful sign-in hands back to the client.
type Created struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
	Record    Record
}

// Validation describes a request that passed every session check.
type Validation struct {
	Identity  string
	SessionID string
	DeviceID  string
	Record    Record
}
