package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"congress-digest/internal/logger"
	"congress-digest/models"

	"github.com/xuri/excelize/v2"
)

// MaxExportRecords caps a single export.
const MaxExportRecords = 5000

// ExportInfo describes an export.
type ExportInfo struct {
	ExportDate   time.Time            `json:"export_date"`
	TotalRecords int                  `json:"total_records"`
	Summarized   int                  `json:"summarized"`
	Format       string               `json:"format"`
	Filter       *models.RecordFilter `json:"filter,omitempty"`
}

// RecordExport is the JSON export document.
type RecordExport struct {
	ExportInfo ExportInfo      `json:"export_info"`
	Records    []models.Record `json:"records"`
}

// ExportService renders record searches as downloadable files.
type ExportService struct {
	records *RecordService
}

func NewExportService(records *RecordService) *ExportService {
	return &ExportService{records: records}
}

// Export runs the search and renders it. format is "json" or "xlsx"; the
// returned values are the file body and its content type.
func (es *ExportService) Export(ctx context.Context, f *models.RecordFilter, format string) ([]byte, string, error) {
	page := *f
	page.Offset = 0
	if page.Limit <= 0 || page.Limit > MaxExportRecords {
		page.Limit = MaxExportRecords
	}

	list, err := es.records.List(ctx, &page)
	if err != nil {
		return nil, "", err
	}

	info := ExportInfo{
		ExportDate:   time.Now().UTC(),
		TotalRecords: len(list.Records),
		Format:       format,
		Filter:       f,
	}
	for i := range list.Records {
		if list.Records[i].HasSummary() {
			info.Summarized++
		}
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(RecordExport{ExportInfo: info, Records: list.Records}, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return data, "application/json", nil
	case "xlsx", "excel":
		data, err := RecordsToExcel(list.Records, info)
		if err != nil {
			return nil, "", err
		}
		return data, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", nil
	default:
		return nil, "", fmt.Errorf("unsupported format: %s", format)
	}
}

var recordHeaders = []string{
	"Doc ID", "Volume", "Issue", "Congress", "Session", "Issue Date",
	"Sections", "PDF", "Summarized At", "Prompt Version", "Summary",
}

// RecordsToExcel writes records to a workbook with a data sheet and an info
// sheet.
func RecordsToExcel(records []models.Record, info ExportInfo) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Error closing Excel file", "error", err)
		}
	}()

	sheetName := "Records"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	for i, header := range recordHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIdx, rec := range records {
		row := rowIdx + 2

		var sections []string
		for _, key := range models.SectionKeys {
			if len(rec.Sections[key]) > 0 {
				sections = append(sections, key)
			}
		}
		pdf, _ := rec.PDFLink()
		summarizedAt := ""
		if rec.SummarizedAt != nil {
			summarizedAt = rec.SummarizedAt.Format("2006-01-02 15:04:05")
		}

		values := []any{
			rec.DocID,
			rec.VolumeNumber,
			rec.IssueNumber,
			rec.Congress,
			rec.SessionNumber,
			rec.IssueDate.Format("2006-01-02"),
			strings.Join(sections, ", "),
			pdf,
			summarizedAt,
			rec.SummaryPromptVersion,
			rec.Summary,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}

	infoSheet := "Export Info"
	if _, err := f.NewSheet(infoSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	infoRows := [][]any{
		{"Export Date", info.ExportDate.Format("2006-01-02 15:04:05")},
		{"Total Records", info.TotalRecords},
		{"Summarized", info.Summarized},
	}
	for i, r := range infoRows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(infoSheet, cell, &r); err != nil {
			return nil, fmt.Errorf("failed to write export info: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}
