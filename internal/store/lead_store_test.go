package store

import (
	"testing"
	"time"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct{ in, want string }{
		{"+91 99000-00000", "919900000000"},
		{"919900000000@s.whatsapp.net", "919900000000"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLeadTime_RoundTrip(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	ts := time.Date(2026, 3, 4, 9, 15, 30, 0, loc)

	s := FormatLeadTime(ts, loc)
	if s != "04/03/2026, 09:15:30" {
		t.Fatalf("unexpected format: %q", s)
	}
	if got := ParseLeadTime(s, loc); !got.Equal(ts) {
		t.Errorf("parse = %v, want %v", got, ts)
	}
	if got := ParseLeadTime("garbage", loc); !got.IsZero() {
		t.Errorf("expected zero time for garbage, got %v", got)
	}
}

func TestIsClosedStatus(t *testing.T) {
	for _, s := range []string{StatusDropped, StatusWon, StatusFollowUpStopped} {
		if !IsClosedStatus(s) {
			t.Errorf("%q should be closed", s)
		}
	}
	if IsClosedStatus(StatusFollowUp1) {
		t.Error("follow-up #1 is still open")
	}
}

func TestSessionData_CloneIsDeep(t *testing.T) {
	s := &SessionData{Key: "a", History: []Turn{{Speaker: SpeakerCustomer, Text: "hi"}}}
	c := s.Clone()
	c.History[0].Text = "changed"
	if s.History[0].Text != "hi" {
		t.Fatal("clone shares history backing array")
	}
	if s.HasAssistantTurn() {
		t.Error("no assistant turn yet")
	}
	s.History = append(s.History, Turn{Speaker: SpeakerAssistant, Text: "hello"})
	if !s.HasAssistantTurn() {
		t.Error("expected assistant turn")
	}
}
