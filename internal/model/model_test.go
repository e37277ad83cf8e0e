package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hh, mm int) time.Time {
	return time.Date(2026, 3, 2, hh, mm, 0, 0, time.UTC)
}

func TestIntervalOverlaps(t *testing.T) {
	base := Interval{Start: at(10, 0), End: at(10, 30)}

	cases := []struct {
		name string
		o    Interval
		want bool
	}{
		{"same interval", Interval{at(10, 0), at(10, 30)}, true},
		{"starts inside", Interval{at(10, 15), at(10, 45)}, true},
		{"ends inside", Interval{at(9, 45), at(10, 15)}, true},
		{"contains", Interval{at(9, 0), at(11, 0)}, true},
		{"contained", Interval{at(10, 5), at(10, 10)}, true},
		{"back to back after", Interval{at(10, 30), at(11, 0)}, false},
		{"back to back before", Interval{at(9, 30), at(10, 0)}, false},
		{"disjoint", Interval{at(12, 0), at(12, 30)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, base.Overlaps(tc.o))
			assert.Equal(t, tc.want, tc.o.Overlaps(base), "overlap must be symmetric")
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusBooked, StatusCancelled))
	assert.True(t, CanTransition(StatusBooked, StatusCompleted))
	assert.False(t, CanTransition(StatusBooked, StatusBooked))
	for _, from := range []Status{StatusCancelled, StatusCompleted} {
		for _, to := range []Status{StatusBooked, StatusCancelled, StatusCompleted} {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
		assert.True(t, from.Terminal())
	}
	assert.False(t, StatusBooked.Terminal())
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" admin ")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, r)

	_, ok = ParseRole("OWNER")
	assert.False(t, ok)
	assert.False(t, Role("patient").Valid())
	assert.True(t, RoleDoctor.Valid())
}

func TestRefreshTokenActive(t *testing.T) {
	now := at(12, 0)
	tok := RefreshToken{ExpiresAt: now.Add(time.Hour)}
	assert.True(t, tok.Active(now))
	assert.False(t, tok.Active(now.Add(time.Hour)), "expiry instant is not active")

	revoked := now
	tok.RevokedAt = &revoked
	assert.False(t, tok.Active(now))
	assert.False(t, tok.Rotated())

	next := "abc"
	tok.ReplacedByHash = &next
	assert.True(t, tok.Rotated())
}

func TestDoctorTreatingUserID(t *testing.T) {
	d := Doctor{ID: "doc-1"}
	assert.Equal(t, "doc-1", d.TreatingUserID())
	uid := "user-9"
	d.UserID = &uid
	assert.Equal(t, "user-9", d.TreatingUserID())
}
