package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"kazka/internal/models"
	"kazka/internal/repositories"

	"github.com/jung-kurt/gofpdf"
)

const receiptBucket = "receipts"

// ReceiptService renders a PDF receipt for a successful payment and stores
// it in object storage. Generation runs from the background queue, after
// the SUCCESS transition.
type ReceiptService interface {
	GenerateAndStore(ctx context.Context, invoiceID string) (string, error)
	ReceiptURL(ctx context.Context, invoiceID string, expiry time.Duration) (string, error)
}

type receiptService struct {
	intentRepo repositories.PaymentIntentRepository
	minioSvc   MinioService
}

func NewReceiptService(intentRepo repositories.PaymentIntentRepository, minioSvc MinioService) ReceiptService {
	return &receiptService{
		intentRepo: intentRepo,
		minioSvc:   minioSvc,
	}
}

func receiptObjectName(invoiceID string) string {
	return fmt.Sprintf("%s.pdf", invoiceID)
}

// GenerateAndStore renders and uploads the receipt. Re-running for the same
// invoice overwrites the same object, so queue retries are safe.
func (s *receiptService) GenerateAndStore(ctx context.Context, invoiceID string) (string, error) {
	intent, err := s.intentRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	if intent.Status != models.IntentStatusSuccess {
		return "", fmt.Errorf("intent %s is %s, receipts are only issued for SUCCESS", invoiceID, intent.Status)
	}

	pdfBytes, err := renderReceiptPDF(intent)
	if err != nil {
		return "", fmt.Errorf("failed to render receipt: %w", err)
	}

	if err := s.minioSvc.EnsureBucketExists(ctx, receiptBucket); err != nil {
		return "", err
	}
	objectName := receiptObjectName(invoiceID)
	if err := s.minioSvc.UploadDocument(ctx, receiptBucket, objectName, "application/pdf", bytes.NewReader(pdfBytes), int64(len(pdfBytes))); err != nil {
		return "", fmt.Errorf("failed to upload receipt: %w", err)
	}
	return objectName, nil
}

func (s *receiptService) ReceiptURL(ctx context.Context, invoiceID string, expiry time.Duration) (string, error) {
	return s.minioSvc.GetPresignedURL(receiptBucket, receiptObjectName(invoiceID), expiry)
}

func renderReceiptPDF(intent *models.PaymentIntent) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	marginX := 20.0
	marginY := 20.0
	pdf.SetMargins(marginX, marginY, marginX)
	pdf.SetAutoPageBreak(true, marginY)

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(33, 37, 41)
	pdf.SetXY(marginX, marginY)
	pdf.Cell(0, 10, "KAZKA PAYMENT RECEIPT")
	pdf.Ln(15)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("Invoice: %s", intent.ID))
	pdf.Ln(8)
	pdf.Cell(0, 8, fmt.Sprintf("Order reference: %s", intent.OrderRef))
	pdf.Ln(8)
	pdf.Cell(0, 8, fmt.Sprintf("Amount: %.2f %s", float64(intent.Amount)/100, intent.Currency))
	pdf.Ln(8)
	pdf.Cell(0, 8, fmt.Sprintf("Paid at: %s", intent.UpdatedAt.Format("2006-01-02 15:04:05 MST")))
	pdf.Ln(8)
	if intent.Description != "" {
		pdf.Cell(0, 8, fmt.Sprintf("Description: %s", intent.Description))
		pdf.Ln(8)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
