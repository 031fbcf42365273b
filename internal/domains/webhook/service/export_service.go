package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	txnrepo "payhook/internal/domains/transaction/repository"
	"payhook/internal/domains/webhook/model"
	"payhook/internal/domains/webhook/repository"
	"payhook/pkg/logger"
)

// =====================================================
// RECONCILIATION EXPORT SERVICE
// =====================================================

const (
	sheetSummary      = "Summary"
	sheetWebhooks     = "Webhook Logs"
	sheetTransactions = "Transactions"

	// Hard cap per sheet; the report is an operator aid, not a dump
	exportRowLimit = 1000
)

// ExportServiceInterface builds the xlsx reconciliation report
type ExportServiceInterface interface {
	BuildReport(ctx context.Context, since time.Time) ([]byte, error)
}

type exportService struct {
	webhookRepo repository.WebhookRepoInterface
	txnRepo     txnrepo.TransactionRepoInterface
}

func NewExportService(webhookRepo repository.WebhookRepoInterface, txnRepo txnrepo.TransactionRepoInterface) ExportServiceInterface {
	return &exportService{
		webhookRepo: webhookRepo,
		txnRepo:     txnRepo,
	}
}

// BuildReport assembles a three-sheet workbook: fate summary, recent
// claims and recent transactions
func (s *exportService) BuildReport(ctx context.Context, since time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Error("failed to close workbook", err)
		}
	}()

	if err := s.writeSummarySheet(ctx, f, since); err != nil {
		return nil, err
	}
	if err := s.writeWebhookSheet(ctx, f); err != nil {
		return nil, err
	}
	if err := s.writeTransactionSheet(ctx, f); err != nil {
		return nil, err
	}

	// Drop the default sheet excelize creates
	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize report: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *exportService) writeSummarySheet(ctx context.Context, f *excelize.File, since time.Time) error {
	stats, err := s.webhookRepo.GetStats(ctx, since)
	if err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetSummary); err != nil {
		return err
	}

	f.SetCellValue(sheetSummary, "A1", "Since")
	f.SetCellValue(sheetSummary, "B1", since.UTC().Format(time.RFC3339))
	f.SetCellValue(sheetSummary, "A2", "Total Claims")
	f.SetCellValue(sheetSummary, "B2", stats.Total)
	f.SetCellValue(sheetSummary, "A3", "Signature Failures")
	f.SetCellValue(sheetSummary, "B3", stats.SignatureFails)

	row := 5
	f.SetCellValue(sheetSummary, fmt.Sprintf("A%d", row), "Fate")
	f.SetCellValue(sheetSummary, fmt.Sprintf("B%d", row), "Count")
	for _, fate := range model.ValidFates {
		row++
		f.SetCellValue(sheetSummary, fmt.Sprintf("A%d", row), string(fate))
		f.SetCellValue(sheetSummary, fmt.Sprintf("B%d", row), stats.ByStatus[string(fate)])
	}

	row += 2
	f.SetCellValue(sheetSummary, fmt.Sprintf("A%d", row), "Provider")
	f.SetCellValue(sheetSummary, fmt.Sprintf("B%d", row), "Count")
	for provider, count := range stats.ByProvider {
		row++
		f.SetCellValue(sheetSummary, fmt.Sprintf("A%d", row), provider)
		f.SetCellValue(sheetSummary, fmt.Sprintf("B%d", row), count)
	}
	return nil
}

func (s *exportService) writeWebhookSheet(ctx context.Context, f *excelize.File) error {
	logs, _, err := s.webhookRepo.List(ctx, &model.ListWebhooksRequest{Page: 1, PageSize: exportRowLimit})
	if err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetWebhooks); err != nil {
		return err
	}

	headers := []string{"Received At", "Provider", "Event Type", "Fate", "Signature Valid", "Transaction ID", "Error"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetWebhooks, cell, h)
	}

	for i, log := range logs {
		row := i + 2
		values := []interface{}{
			log.ReceivedAt.UTC().Format(time.RFC3339),
			log.Provider,
			deref(log.EventType),
			string(log.ProcessingStatus),
			log.SignatureValid,
			"",
			deref(log.ErrorMessage),
		}
		if log.TransactionID != nil {
			values[5] = log.TransactionID.String()
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			f.SetCellValue(sheetWebhooks, cell, v)
		}
	}
	return nil
}

func (s *exportService) writeTransactionSheet(ctx context.Context, f *excelize.File) error {
	txns, _, err := s.txnRepo.AdminList(ctx, map[string]interface{}{}, 1, exportRowLimit)
	if err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetTransactions); err != nil {
		return err
	}

	headers := []string{"Created At", "Application Ref", "Provider", "Provider Ref", "Status", "Verification", "Amount", "Currency", "Version"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetTransactions, cell, h)
	}

	for i, txn := range txns {
		row := i + 2
		// Major units for the human reader; storage stays in minor units
		major := decimal.NewFromInt(txn.Amount).Div(decimal.NewFromInt(100))
		values := []interface{}{
			txn.CreatedAt.UTC().Format(time.RFC3339),
			txn.ApplicationRef,
			txn.Provider,
			deref(txn.ProviderRef),
			string(txn.Status),
			string(txn.VerificationMethod),
			major.StringFixed(2),
			txn.Currency,
			txn.Version,
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			f.SetCellValue(sheetTransactions, cell, v)
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
