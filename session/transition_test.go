package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEvents = []EventKind{
	EventRefresh, EventLogout, EventExpire, EventEvict,
	EventSecurityRevoke, EventSuspend, EventBlacklist,
}

func recordWithStatus(status Status) Record {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Record{
		Owner:        "0xabc",
		SessionID:    "sid",
		Identity:     "0xabc",
		Status:       status,
		CreatedAt:    created,
		LastActiveAt: created,
	}
}

func TestTransition_Table(t *testing.T) {
	tests := []struct {
		from       Status
		event      EventKind
		wantStatus Status
		wantReason Reason
		wantErr    bool
	}{
		{StatusActive, EventRefresh, StatusActive, "", false},
		{StatusActive, EventLogout, StatusInactive, ReasonLogout, false},
		{StatusActive, EventExpire, StatusInactive, ReasonExpired, false},
		{StatusActive, EventEvict, StatusInactive, ReasonEvicted, false},
		{StatusActive, EventSecurityRevoke, StatusInactive, ReasonSecurity, false},
		{StatusActive, EventSuspend, StatusSuspended, ReasonSecurity, false},
		{StatusActive, EventBlacklist, StatusBlacklisted, ReasonSecurity, false},

		{StatusSuspended, EventRefresh, "", "", true},
		{StatusSuspended, EventLogout, StatusInactive, ReasonLogout, false},
		{StatusSuspended, EventSecurityRevoke, StatusInactive, ReasonSecurity, false},
		{StatusSuspended, EventSuspend, "", "", true},
		{StatusSuspended, EventBlacklist, StatusBlacklisted, ReasonSecurity, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			at := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)

			next, err := Transition(recordWithStatus(tt.from), Event{Kind: tt.event, At: at})

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, next.Status)
			assert.Equal(t, tt.wantReason, next.DeactivationReason)
			if tt.event == EventRefresh {
				assert.Equal(t, at, next.LastActiveAt)
				assert.Nil(t, next.DeactivatedAt)
			} else {
				require.NotNil(t, next.DeactivatedAt)
			}
		})
	}
}

func TestTransition_SinksAcceptNothing(t *testing.T) {
	for _, status := range []Status{StatusInactive, StatusBlacklisted} {
		for _, kind := range allEvents {
			t.Run(string(status)+"/"+string(kind), func(t *testing.T) {
				rec := recordWithStatus(status)

				next, err := Transition(rec, Event{Kind: kind, At: time.Now()})

				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, rec, next)
			})
		}
	}
}

func TestTransition_Blacklist(t *testing.T) {
	at := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)

	next, err := Transition(recordWithStatus(StatusActive), Event{Kind: EventBlacklist, At: at, Reason: "stolen device"})

	require.NoError(t, err)
	require.NotNil(t, next.BlacklistedAt)
	assert.Equal(t, at, *next.BlacklistedAt)
	assert.Equal(t, "stolen device", next.BlacklistReason)
}

func TestTransition_SuspendedKeepsOriginalDeactivation(t *testing.T) {
	suspendedAt := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	suspended, err := Transition(recordWithStatus(StatusActive), Event{Kind: EventSuspend, At: suspendedAt})
	require.NoError(t, err)

	blacklisted, err := Transition(suspended, Event{Kind: EventBlacklist, At: suspendedAt.Add(time.Hour)})

	require.NoError(t, err)
	assert.Equal(t, suspendedAt, *blacklisted.DeactivatedAt)
	assert.Equal(t, suspendedAt.Add(time.Hour), *blacklisted.BlacklistedAt)
}

func TestTransition_UnknownEvent(t *testing.T) {
	_, err := Transition(recordWithStatus(StatusActive), Event{Kind: "resurrect"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

// No sequence of events leads from blacklisted back to active.
func TestTransition_BlacklistIsTerminal(t *testing.T) {
	rec, err := Transition(recordWithStatus(StatusActive), Event{Kind: EventBlacklist, At: time.Now()})
	require.NoError(t, err)

	for round := 0; round < 3; round++ {
		for _, kind := range allEvents {
			next, err := Transition(rec, Event{Kind: kind, At: time.Now()})
			if err == nil {
				rec = next
			}
			assert.Equal(t, StatusBlacklisted, rec.Status)
		}
	}
}

func TestEventForReason(t *testing.T) {
	for reason, want := range map[Reason]EventKind{
		ReasonLogout:   EventLogout,
		ReasonExpired:  EventExpire,
		ReasonEvicted:  EventEvict,
		ReasonSecurity: EventSecurityRevoke,
	} {
		got, err := eventForReason(reason)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, reason, deactivationReason(got))
	}

	_, err := eventForReason("bored")
	assert.ErrorIs(t, err, ErrUnknownEvent)
}
