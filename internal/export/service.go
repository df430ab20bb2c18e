package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/obafela/doc-pipeline/internal/repository"
)

// Service is a tiny façade over repositories that produces XLSX bytes
// for operational exports: job history and the failure log.
type Service struct {
	jobs     repository.JobRepository
	docs     repository.DocumentRepository
	failures repository.FailureRepository
	logger   *slog.Logger
}

func NewService(jobs repository.JobRepository, docs repository.DocumentRepository, failures repository.FailureRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, docs: docs, failures: failures, logger: logger}
}

// ExportJobHistoryXLSX returns an XLSX workbook of the most recent jobs,
// newest first, one row per job.
func (s *Service) ExportJobHistoryXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()

	jobs, err := s.jobs.ListJobHistory(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Jobs"
	if err := useSheet(f, sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Job ID",
		"Document",
		"Status",
		"Stage",
		"Retries",
		"Pages",
		"Started",
		"Completed",
		"Error",
	}
	writeHeaders(f, sheet, headers)

	row := 2
	for _, j := range jobs {
		filename := ""
		if doc, err := s.docs.GetDocument(ctx, j.DocumentID); err == nil && doc != nil {
			filename = doc.Filename
		}

		write := cellWriter(f, sheet, row)
		write(1, j.ID.String())
		write(2, filename)
		write(3, j.Status)
		write(4, j.Stage)
		write(5, j.RetryCount)
		write(6, fmt.Sprintf("%d/%d", j.PagesDone, j.PagesTotal))
		write(7, fmtTime(j.StartedAt))
		write(8, fmtTime(j.CompletedAt))
		write(9, truncate(j.ErrorMessage, 140))
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "B", 40)
	_ = f.SetColWidth(sheet, "C", "D", 16)
	_ = f.SetColWidth(sheet, "E", "F", 10)
	_ = f.SetColWidth(sheet, "G", "H", 22)
	_ = f.SetColWidth(sheet, "I", "I", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.jobs.ok",
		"rows", len(jobs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// ExportFailuresXLSX returns an XLSX workbook of failure-log entries.
// reviewStatus filters rows when non-empty.
func (s *Service) ExportFailuresXLSX(ctx context.Context, reviewStatus string, limit int) ([]byte, error) {
	start := time.Now()

	fails, err := s.failures.ListFailures(ctx, reviewStatus, limit)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Failures"
	if err := useSheet(f, sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Failure ID",
		"Job ID",
		"Document",
		"Stage",
		"Attempts",
		"Error",
		"Review Status",
		"Review Notes",
		"Logged",
	}
	writeHeaders(f, sheet, headers)

	row := 2
	for _, fl := range fails {
		filename := ""
		if doc, err := s.docs.GetDocument(ctx, fl.DocumentID); err == nil && doc != nil {
			filename = doc.Filename
		}

		write := cellWriter(f, sheet, row)
		write(1, fl.ID.String())
		write(2, fl.JobID.String())
		write(3, filename)
		write(4, fl.Stage)
		write(5, fl.AttemptCount)
		write(6, truncate(fl.ErrorMessage, 140))
		write(7, fl.ReviewStatus)
		write(8, truncate(fl.ReviewNotes, 140))
		write(9, fl.CreatedAt.Format("2006-01-02 15:04:05"))
		row++
	}

	_ = f.SetColWidth(sheet, "A", "B", 38)
	_ = f.SetColWidth(sheet, "C", "C", 40)
	_ = f.SetColWidth(sheet, "D", "E", 14)
	_ = f.SetColWidth(sheet, "F", "F", 48)
	_ = f.SetColWidth(sheet, "G", "H", 20)
	_ = f.SetColWidth(sheet, "I", "I", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.failures.ok",
		"rows", len(fails),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func useSheet(f *excelize.File, sheet string) error {
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	return nil
}

func writeHeaders(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
}

func cellWriter(f *excelize.File, sheet string, row int) func(col int, v any) {
	return func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
