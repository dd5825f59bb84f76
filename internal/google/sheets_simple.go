package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Shoffly/dealer-visits/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var errRowNotFound = errors.New("visit row not found")

const visitsSheetName = "Visits"

// SheetsService mirrors visit rows into a reporting spreadsheet. The
// sheet is a downstream copy; the database stays authoritative.
type SheetsService struct {
	service       *sheets.Service
	visitsSheetID string
	rowCache      map[string]int
	cacheMu       sync.RWMutex
}

func NewSheetsService(credentialsFile, visitsSheetID string) (*SheetsService, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	client := config.Client(ctx)

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	service := &SheetsService{
		service:       srv,
		visitsSheetID: visitsSheetID,
		rowCache:      make(map[string]int),
	}

	// Warm up cache in background
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		service.WarmUpCache(ctx)
	}()

	// Periodic cache refresh every 1 hour
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			service.WarmUpCache(ctx)
			cancel()
		}
	}()

	return service, nil
}

// TestConnection reads the first cell to verify spreadsheet access.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.visitsSheetID, visitsSheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail returns the service account email from the
// credentials file, useful for sharing instructions in logs.
func (s *SheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}

	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}

	return creds.ClientEmail, nil
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.visitsSheetID, visitsSheetName+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok && id != "" && id != "ID" {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// AppendVisit adds a new visit row.
func (s *SheetsService) AppendVisit(ctx context.Context, visit *models.Visit) error {
	rangeData := visitsSheetName + "!A:A"
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{visitRowValues(visit)},
	}

	_, err := s.service.Spreadsheets.Values.Append(s.visitsSheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()

	return err
}

// UpsertVisit updates an existing visit row or appends a new one if not found.
func (s *SheetsService) UpsertVisit(ctx context.Context, visit *models.Visit) error {
	if visit == nil {
		return fmt.Errorf("visit is nil")
	}

	rowIdx, err := s.FindVisitRow(ctx, visit.ID)
	if err != nil {
		if errors.Is(err, errRowNotFound) {
			return s.AppendVisit(ctx, visit)
		}
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:P%d", visitsSheetName, rowIdx, rowIdx)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{visitRowValues(visit)},
	}

	_, err = s.service.Spreadsheets.Values.Update(s.visitsSheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// ReplaceVisitsSheet rewrites all visit rows below the header.
func (s *SheetsService) ReplaceVisitsSheet(ctx context.Context, visits []*models.Visit) error {
	clearRange := visitsSheetName + "!A2:Z"
	clearReq := &sheets.ClearValuesRequest{}

	_, err := s.service.Spreadsheets.Values.Clear(s.visitsSheetID, clearRange, clearReq).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear visits sheet: %v", err)
	}

	var values [][]interface{}
	for _, visit := range visits {
		values = append(values, visitRowValues(visit))
	}

	valueRange := &sheets.ValueRange{
		Values: values,
	}

	_, err = s.service.Spreadsheets.Values.Update(s.visitsSheetID, visitsSheetName+"!A2", valueRange).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update visits sheet: %v", err)
	}

	// Re-populate cache
	s.cacheMu.Lock()
	s.rowCache = make(map[string]int)
	for i, visit := range visits {
		s.rowCache[visit.ID] = i + 2 // +2 because data starts at row 2
	}
	s.cacheMu.Unlock()

	return nil
}

// FindVisitRow locates the 1-based row index for a visit ID in column A.
func (s *SheetsService) FindVisitRow(ctx context.Context, visitID string) (int, error) {
	if visitID == "" {
		return 0, fmt.Errorf("visit id is required")
	}

	if row, ok := s.getCachedRow(visitID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.visitsSheetID, visitsSheetName+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok && id == visitID {
			rowIdx := i + 1 // Values are zero-based; sheet rows are 1-based
			s.setCachedRow(visitID, rowIdx)
			return rowIdx, nil
		}
	}

	return 0, errRowNotFound
}

func (s *SheetsService) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

// ClearCache clears the row index cache.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
}

func visitRowValues(visit *models.Visit) []interface{} {
	confirmedAt := ""
	if visit.ConfirmedAt != nil {
		confirmedAt = visit.ConfirmedAt.Format("2006-01-02 15:04:05")
	}
	updatedAt := ""
	if visit.UpdatedAt != nil {
		updatedAt = visit.UpdatedAt.Format("2006-01-02 15:04:05")
	}

	return []interface{}{
		visit.ID,
		visit.CarName,
		visit.RequestID,
		visit.DealerName,
		visit.DealerPhoneNumber,
		visit.VisitDate.Format("2006-01-02"),
		visit.TimeSlot,
		visit.CarLocation,
		visit.AgentName,
		visit.Status,
		visit.Notes,
		visit.OpenedBy,
		visit.OpenedAt.Format("2006-01-02 15:04:05"),
		visit.ConfirmedBy,
		confirmedAt,
		updatedAt,
	}
}
