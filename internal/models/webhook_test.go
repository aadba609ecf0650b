package models

import "testing"

func TestWebhookSubscriptionMatches(t *testing.T) {
	cases := []struct {
		name   string
		events []string
		check  WebhookEvent
		want   bool
	}{
		{"exact match", []string{"consent.granted"}, EventConsentGranted, true},
		{"wildcard subscribes to everything", []string{"*"}, EventDataErased, true},
		{"no match", []string{"consent.granted"}, EventDataErased, false},
		{"empty subscription matches nothing", nil, EventConsentGranted, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := &WebhookSubscription{Events: c.events}
			if got := s.Matches(c.check); got != c.want {
				t.Errorf("Matches(%q) = %v, want %v", c.check, got, c.want)
			}
		})
	}
}

func TestRetentionActionValid(t *testing.T) {
	if !RetentionActionDelete.Valid() {
		t.Error("expected DELETE to be a valid retention action")
	}
	if RetentionAction("PURGE").Valid() {
		t.Error("expected an unknown retention action to be invalid")
	}
}
