package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Shoffly/dealer-visits/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const visitsSheetName = "Visits"

var visitHeaders = []string{
	"ID", "Car", "Request ID", "Dealer", "Phone", "Visit Date", "Time Slot",
	"Location", "Agent", "Status", "Notes", "Opened By", "Opened At",
	"Confirmed By", "Confirmed At",
}

// Exporter writes visit lists to xlsx files for offline hand-off.
type Exporter struct {
	path   string
	logger *zerolog.Logger
}

func NewExporter(path string, logger *zerolog.Logger) *Exporter {
	return &Exporter{path: path, logger: logger}
}

// ExportVisits writes the given visits to a timestamped xlsx file and
// returns its path.
func (e *Exporter) ExportVisits(_ context.Context, visits []*models.Visit) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(visitsSheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	for i, header := range visitHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(visitsSheetName, cell, header)
		_ = f.SetCellStyle(visitsSheetName, cell, cell, headerStyle)
	}

	for i, visit := range visits {
		row := i + 2
		e.writeVisitRow(f, row, visit)

		if styleID, err := e.statusStyle(f, visit.Status); err == nil {
			first, _ := excelize.CoordinatesToCellName(1, row)
			last, _ := excelize.CoordinatesToCellName(len(visitHeaders), row)
			_ = f.SetCellStyle(visitsSheetName, first, last, styleID)
		}
	}

	_ = f.SetColWidth(visitsSheetName, "A", "A", 30)
	_ = f.SetColWidth(visitsSheetName, "B", "E", 22)
	_ = f.SetColWidth(visitsSheetName, "F", "J", 16)
	_ = f.SetColWidth(visitsSheetName, "K", "O", 22)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("visits_export_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("visits", len(visits)).Msg("Excel file created")
	return filePath, nil
}

func (e *Exporter) writeVisitRow(f *excelize.File, row int, visit *models.Visit) {
	confirmedAt := ""
	if visit.ConfirmedAt != nil {
		confirmedAt = visit.ConfirmedAt.Format("02.01.2006 15:04")
	}

	values := []interface{}{
		visit.ID,
		visit.CarName,
		visit.RequestID,
		visit.DealerName,
		visit.DealerPhoneNumber,
		visit.VisitDate.Format("02.01.2006"),
		visit.TimeSlot,
		visit.CarLocation,
		visit.AgentName,
		visit.Status,
		visit.Notes,
		visit.OpenedBy,
		visit.OpenedAt.Format("02.01.2006 15:04"),
		visit.ConfirmedBy,
		confirmedAt,
	}

	for i, value := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(visitsSheetName, cell, value)
	}
}

func (e *Exporter) statusStyle(f *excelize.File, status string) (int, error) {
	var color string
	switch status {
	case models.StatusConfirmed:
		color = "#C6EFCE"
	case models.StatusOpen:
		color = "#FFEB9C"
	case models.StatusCancelled:
		color = "#FFC7CE"
	default:
		color = "#FFFFFF"
	}

	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "left",
			Vertical:   "top",
			WrapText:   true,
		},
	})
}
