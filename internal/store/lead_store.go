package store

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// LeadField names a patchable column of a lead record.
type LeadField string

const (
	LeadName            LeadField = "name"
	LeadRequirement     LeadField = "requirement"
	LeadLocation        LeadField = "location"
	LeadStatus          LeadField = "status"
	LeadLastActive      LeadField = "last_active"
	LeadFollowUpCount   LeadField = "follow_up_count"
	LeadAlertedProducts LeadField = "alerted_products"
)

// Lead statuses written by the bot or by the sales team.
const (
	StatusNew             = "New Lead"
	StatusActive          = "Active Lead"
	StatusFollowUp1       = "Follow-Up #1 Sent"
	StatusFollowUp2       = "Follow-Up #2 Sent"
	StatusFollowUpStopped = "Follow-Up Stopped"
	StatusDropped         = "Dropped"
	StatusWon             = "Won"
)

// IsClosedStatus reports whether a lead must not be contacted automatically.
func IsClosedStatus(status string) bool {
	switch status {
	case StatusDropped, StatusFollowUpStopped, StatusWon:
		return true
	}
	return false
}

// Lead is one row of the lead log. Identity is the normalized phone number.
type Lead struct {
	FirstContact    time.Time `json:"firstContact"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	Requirement     string    `json:"requirement"`
	Location        string    `json:"location"`
	Status          string    `json:"status"`
	LastActive      time.Time `json:"lastActive,omitempty"`
	FollowUpCount   int       `json:"followUpCount"`
	AlertedProducts string    `json:"alertedProducts,omitempty"`
}

// LeadStore is the external lead log.
type LeadStore interface {
	// CreateLead appends a new lead record.
	CreateLead(ctx context.Context, lead Lead) error

	// UpdateField patches one field on the most recent record for phone,
	// creating a record when none exists yet.
	UpdateField(ctx context.Context, phone string, field LeadField, value string) error

	// ListLeads returns every lead record in insertion order.
	ListLeads(ctx context.Context) ([]Lead, error)
}

// NormalizePhone strips everything except digits.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
}

// LeadTimeLayout is how timestamps are written into human-facing lead logs.
const LeadTimeLayout = "02/01/2006, 15:04:05"

// FormatLeadTime renders t in the showroom's timezone.
func FormatLeadTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(LeadTimeLayout)
}

// ParseLeadTime accepts LeadTimeLayout or RFC 3339; anything else yields the zero time.
func ParseLeadTime(s string, loc *time.Location) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(LeadTimeLayout, s, loc); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
