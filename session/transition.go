package session

import (
	"fmt"
	"time"
)

type EventKind string

const (
	EventRefresh        EventKind = "refresh"
	EventLogout         EventKind = "logout"
	EventExpire         EventKind = "expire"
	EventEvict          EventKind = "evict"
	EventSecurityRevoke EventKind = "security_revoke"
	EventSuspend        EventKind = "suspend"
	EventBlacklist      EventKind = "blacklist"
)

type Event struct {
	Kind EventKind
	At   time.Time
	// Reason is free text recorded with a blacklist.
	Reason string
}

// Transition is the only place a record's status changes. active may refresh
// itself; inactive and blacklisted are sinks.
func Transition(rec Record, ev Event) (Record, error) {
	at := ev.At

	switch ev.Kind {
	case EventRefresh:
		if rec.Status != StatusActive {
			return rec, invalid(rec, ev)
		}
		rec.LastActiveAt = at
		return rec, nil

	case EventLogout, EventExpire, EventEvict, EventSecurityRevoke:
		if rec.Status != StatusActive && rec.Status != StatusSuspended {
			return rec, invalid(rec, ev)
		}
		rec.Status = StatusInactive
		rec.DeactivatedAt = &at
		rec.DeactivationReason = deactivationReason(ev.Kind)
		return rec, nil

	case EventSuspend:
		if rec.Status != StatusActive {
			return rec, invalid(rec, ev)
		}
		rec.Status = StatusSuspended
		rec.DeactivatedAt = &at
		rec.DeactivationReason = ReasonSecurity
		return rec, nil

	case EventBlacklist:
		if rec.Status != StatusActive && rec.Status != StatusSuspended {
			return rec, invalid(rec, ev)
		}
		if rec.DeactivatedAt == nil {
			rec.DeactivatedAt = &at
			rec.DeactivationReason = ReasonSecurity
		}
		rec.Status = StatusBlacklisted
		rec.BlacklistedAt = &at
		rec.BlacklistReason = ev.Reason
		return rec, nil

	default:
		return rec, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}
}

func deactivationReason(kind EventKind) Reason {
	switch kind {
	case EventLogout:
		return ReasonLogout
	case EventExpire:
		return ReasonExpired
	case EventEvict:
		return ReasonEvicted
	default:
		return ReasonSecurity
	}
}

func eventForReason(reason Reason) (EventKind, error) {
	switch reason {
	case ReasonLogout:
		return EventLogout, nil
	case ReasonExpired:
		return EventExpire, nil
	case ReasonEvicted:
		return EventEvict, nil
	case ReasonSecurity:
		return EventSecurityRevoke, nil
	default:
		return "", fmt.Errorf("%w: no event for reason %q", ErrUnknownEvent, reason)
	}
}

func invalid(rec Record, ev Event) error {
	return fmt.Errorf("%w: %s on %s session", ErrInvalidTransition, ev.Kind, rec.Status)
}
