// Package sheets implements the lead store on a Google Sheets spreadsheet.
//
// Columns: A firstContact | B name | C phone | D requirement | E location |
// F status | G lastActive | H followUpCount | I alertedProducts.
package sheets

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/nextlevelbuilder/showroombot/internal/store"
)

const (
	colFirstContact = iota
	colName
	colPhone
	colRequirement
	colLocation
	colStatus
	colLastActive
	colFollowUpCount
	colAlerted
	numCols
)

var fieldColumns = map[store.LeadField]int{
	store.LeadName:            colName,
	store.LeadRequirement:     colRequirement,
	store.LeadLocation:        colLocation,
	store.LeadStatus:          colStatus,
	store.LeadLastActive:      colLastActive,
	store.LeadFollowUpCount:   colFollowUpCount,
	store.LeadAlertedProducts: colAlerted,
}

// Config configures the spreadsheet lead store.
type Config struct {
	SpreadsheetID string
	SheetName     string         // default "Sheet1"
	Credentials   string         // service account file path or inline JSON
	Location      *time.Location // timezone for written timestamps
}

// LeadStore implements store.LeadStore.
type LeadStore struct {
	svc   *gsheets.Service
	id    string
	sheet string
	loc   *time.Location

	// Serializes read-then-patch sequences so two writers never race on a row lookup.
	mu sync.Mutex
}

// NewLeadStore builds a Sheets client from service account credentials.
// Extra options are appended last (tests point the client at a fake endpoint).
func NewLeadStore(ctx context.Context, cfg Config, extra ...option.ClientOption) (*LeadStore, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id is required")
	}
	var opts []option.ClientOption
	if creds := strings.TrimSpace(cfg.Credentials); creds != "" {
		if strings.HasPrefix(creds, "{") {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		} else {
			if _, err := os.Stat(creds); err != nil {
				return nil, fmt.Errorf("sheets: credentials file: %w", err)
			}
			opts = append(opts, option.WithCredentialsFile(creds))
		}
	}
	opts = append(opts, option.WithScopes(gsheets.SpreadsheetsScope))
	opts = append(opts, extra...)

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}

	sheet := cfg.SheetName
	if sheet == "" {
		sheet = "Sheet1"
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &LeadStore{svc: svc, id: cfg.SpreadsheetID, sheet: sheet, loc: loc}, nil
}

func (s *LeadStore) CreateLead(ctx context.Context, lead store.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendRow(ctx, lead)
}

// UpdateField patches the most recent row for phone (searching bottom-up).
// Requirement and location updates promote a "New Lead" to "Active Lead".
func (s *LeadStore) UpdateField(ctx context.Context, phone string, field store.LeadField, value string) error {
	col, ok := fieldColumns[field]
	if !ok {
		return fmt.Errorf("sheets: unknown lead field %q", field)
	}
	phone = store.NormalizePhone(phone)

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readRows(ctx)
	if err != nil {
		return err
	}

	target := -1
	for i := len(rows) - 1; i >= 0; i-- {
		if store.NormalizePhone(cell(rows[i], colPhone)) == phone && phone != "" {
			target = i
			break
		}
	}

	promote := field == store.LeadRequirement || field == store.LeadLocation

	if target < 0 {
		lead := store.Lead{FirstContact: time.Now(), Phone: phone, Status: store.StatusNew}
		if promote {
			lead.Status = store.StatusActive
		}
		setLeadField(&lead, field, value, s.loc)
		return s.appendRow(ctx, lead)
	}

	rowNum := target + 1 // sheet rows are 1-indexed
	data := []*gsheets.ValueRange{{
		Range:  s.cellRange(col, rowNum),
		Values: [][]interface{}{{value}},
	}}
	if promote {
		if status := cell(rows[target], colStatus); status == "" || status == store.StatusNew {
			data = append(data, &gsheets.ValueRange{
				Range:  s.cellRange(colStatus, rowNum),
				Values: [][]interface{}{{store.StatusActive}},
			})
		}
	}

	_, err = s.svc.Spreadsheets.Values.BatchUpdate(s.id, &gsheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: update %s row %d: %w", field, rowNum, err)
	}
	return nil
}

func (s *LeadStore) ListLeads(ctx context.Context) ([]store.Lead, error) {
	s.mu.Lock()
	rows, err := s.readRows(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	leads := make([]store.Lead, 0, len(rows))
	for _, row := range rows {
		phone := store.NormalizePhone(cell(row, colPhone))
		if phone == "" {
			continue // header or blank row
		}
		count, _ := strconv.Atoi(cell(row, colFollowUpCount))
		leads = append(leads, store.Lead{
			FirstContact:    store.ParseLeadTime(cell(row, colFirstContact), s.loc),
			Name:            cell(row, colName),
			Phone:           phone,
			Requirement:     cell(row, colRequirement),
			Location:        cell(row, colLocation),
			Status:          cell(row, colStatus),
			LastActive:      store.ParseLeadTime(cell(row, colLastActive), s.loc),
			FollowUpCount:   count,
			AlertedProducts: cell(row, colAlerted),
		})
	}
	return leads, nil
}

func (s *LeadStore) appendRow(ctx context.Context, lead store.Lead) error {
	row := []interface{}{
		store.FormatLeadTime(lead.FirstContact, s.loc),
		lead.Name,
		store.NormalizePhone(lead.Phone),
		lead.Requirement,
		lead.Location,
		lead.Status,
		store.FormatLeadTime(lead.LastActive, s.loc),
		strconv.Itoa(lead.FollowUpCount),
		lead.AlertedProducts,
	}
	_, err := s.svc.Spreadsheets.Values.Append(s.id, s.fullRange(), &gsheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: append lead: %w", err)
	}
	return nil
}

func (s *LeadStore) readRows(ctx context.Context) ([][]interface{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.id, s.fullRange()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: read leads: %w", err)
	}
	return resp.Values, nil
}

func (s *LeadStore) fullRange() string {
	return fmt.Sprintf("%s!A:%c", s.sheet, 'A'+numCols-1)
}

func (s *LeadStore) cellRange(col, row int) string {
	return fmt.Sprintf("%s!%c%d", s.sheet, 'A'+col, row)
}

func cell(row []interface{}, col int) string {
	if col >= len(row) || row[col] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[col]))
}

func setLeadField(lead *store.Lead, field store.LeadField, value string, loc *time.Location) {
	switch field {
	case store.LeadName:
		lead.Name = value
	case store.LeadRequirement:
		lead.Requirement = value
	case store.LeadLocation:
		lead.Location = value
	case store.LeadStatus:
		lead.Status = value
	case store.LeadLastActive:
		lead.LastActive = store.ParseLeadTime(value, loc)
	case store.LeadFollowUpCount:
		lead.FollowUpCount, _ = strconv.Atoi(value)
	case store.LeadAlertedProducts:
		lead.AlertedProducts = value
	}
}
