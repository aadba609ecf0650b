package models

import (
	"testing"
	"time"
)

func TestRequestIsOverdue(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name     string
		status   RequestStatus
		deadline time.Time
		want     bool
	}{
		{"pending past deadline", RequestStatusPending, past, true},
		{"in progress past deadline", RequestStatusInProgress, past, true},
		{"pending before deadline", RequestStatusPending, future, false},
		{"completed past deadline", RequestStatusCompleted, past, false},
		{"rejected past deadline", RequestStatusRejected, past, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := &Request{Status: c.status, DeadlineAt: c.deadline}
			if got := r.IsOverdue(now); got != c.want {
				t.Errorf("IsOverdue() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestRequestDaysRemaining(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	r := &Request{DeadlineAt: now.AddDate(0, 0, 5)}
	if got := r.DaysRemaining(now); got != 5 {
		t.Errorf("expected 5 days remaining, got %d", got)
	}

	overdue := &Request{DeadlineAt: now.AddDate(0, 0, -5)}
	if got := overdue.DaysRemaining(now); got != 0 {
		t.Errorf("expected DaysRemaining to floor at 0 for an overdue request, got %d", got)
	}
}

func TestRequestStatusIsTerminal(t *testing.T) {
	terminal := []RequestStatus{RequestStatusCompleted, RequestStatusRejected, RequestStatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}

	nonTerminal := []RequestStatus{RequestStatusPending, RequestStatusInProgress}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("expected %q to not be terminal", s)
		}
	}
}

func TestRequestTypeValid(t *testing.T) {
	if !RequestTypeDataErasure.Valid() {
		t.Error("expected DATA_ERASURE to be valid")
	}
	if RequestType("BOGUS").Valid() {
		t.Error("expected an unknown request type to be invalid")
	}
}
