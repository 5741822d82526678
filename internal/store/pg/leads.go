package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/showroombot/internal/store"
)

var fieldColumns = map[store.LeadField]string{
	store.LeadName:            "name",
	store.LeadRequirement:     "requirement",
	store.LeadLocation:        "location",
	store.LeadStatus:          "status",
	store.LeadLastActive:      "last_active",
	store.LeadFollowUpCount:   "follow_up_count",
	store.LeadAlertedProducts: "alerted_products",
}

// LeadStore implements store.LeadStore backed by Postgres.
type LeadStore struct {
	db  *sql.DB
	loc *time.Location
}

func NewLeadStore(db *sql.DB, loc *time.Location) *LeadStore {
	if loc == nil {
		loc = time.UTC
	}
	return &LeadStore{db: db, loc: loc}
}

func (s *LeadStore) CreateLead(ctx context.Context, lead store.Lead) error {
	return s.insert(ctx, s.db, lead)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *LeadStore) insert(ctx context.Context, db execer, lead store.Lead) error {
	var lastActive any
	if !lead.LastActive.IsZero() {
		lastActive = lead.LastActive
	}
	status := lead.Status
	if status == "" {
		status = store.StatusNew
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO leads (id, first_contact, name, phone, requirement, location, status, last_active, follow_up_count, alerted_products, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.Must(uuid.NewV7()), lead.FirstContact, lead.Name, store.NormalizePhone(lead.Phone),
		lead.Requirement, lead.Location, status, lastActive, lead.FollowUpCount, lead.AlertedProducts, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// UpdateField patches the most recent lead for phone, inserting one when
// none exists. Requirement and location updates promote "New Lead" to "Active Lead".
func (s *LeadStore) UpdateField(ctx context.Context, phone string, field store.LeadField, value string) error {
	col, ok := fieldColumns[field]
	if !ok {
		return fmt.Errorf("unknown lead field %q", field)
	}
	phone = store.NormalizePhone(phone)
	promote := field == store.LeadRequirement || field == store.LeadLocation

	var arg any = value
	switch field {
	case store.LeadLastActive:
		t := store.ParseLeadTime(value, s.loc)
		if t.IsZero() {
			arg = nil
		} else {
			arg = t
		}
	case store.LeadFollowUpCount:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("follow-up count %q: %w", value, err)
		}
		arg = n
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var id uuid.UUID
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT id, status FROM leads WHERE phone = $1 ORDER BY created_at DESC LIMIT 1 FOR UPDATE`, phone,
	).Scan(&id, &status)
	if errors.Is(err, sql.ErrNoRows) {
		lead := store.Lead{FirstContact: time.Now(), Phone: phone, Status: store.StatusNew}
		if promote {
			lead.Status = store.StatusActive
		}
		applyField(&lead, field, arg)
		if err := s.insert(ctx, tx, lead); err != nil {
			return err
		}
		return tx.Commit()
	}
	if err != nil {
		return fmt.Errorf("find lead %s: %w", phone, err)
	}

	// col comes from fieldColumns, never from input.
	if _, err := tx.ExecContext(ctx, `UPDATE leads SET `+col+` = $1 WHERE id = $2`, arg, id); err != nil {
		return fmt.Errorf("update lead %s: %w", field, err)
	}
	if promote && (status == "" || status == store.StatusNew) {
		if _, err := tx.ExecContext(ctx, `UPDATE leads SET status = $1 WHERE id = $2`, store.StatusActive, id); err != nil {
			return fmt.Errorf("promote lead: %w", err)
		}
	}
	return tx.Commit()
}

func (s *LeadStore) ListLeads(ctx context.Context) ([]store.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT first_contact, name, phone, requirement, location, status, last_active, follow_up_count, alerted_products
		 FROM leads ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []store.Lead
	for rows.Next() {
		var l store.Lead
		var lastActive sql.NullTime
		if err := rows.Scan(&l.FirstContact, &l.Name, &l.Phone, &l.Requirement, &l.Location,
			&l.Status, &lastActive, &l.FollowUpCount, &l.AlertedProducts); err != nil {
			return nil, err
		}
		if lastActive.Valid {
			l.LastActive = lastActive.Time
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func applyField(lead *store.Lead, field store.LeadField, v any) {
	switch field {
	case store.LeadName:
		lead.Name, _ = v.(string)
	case store.LeadRequirement:
		lead.Requirement, _ = v.(string)
	case store.LeadLocation:
		lead.Location, _ = v.(string)
	case store.LeadStatus:
		lead.Status, _ = v.(string)
	case store.LeadLastActive:
		lead.LastActive, _ = v.(time.Time)
	case store.LeadFollowUpCount:
		lead.FollowUpCount, _ = v.(int)
	case store.LeadAlertedProducts:
		lead.AlertedProducts, _ = v.(string)
	}
}
