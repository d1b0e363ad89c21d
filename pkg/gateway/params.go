package gateway

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

// CaptureStatus mirrors the Square payment lifecycle states settlement
// cares about.
type CaptureStatus string

const (
	CaptureStatusPending   CaptureStatus = "PENDING"
	CaptureStatusApproved  CaptureStatus = "APPROVED"
	CaptureStatusCompleted CaptureStatus = "COMPLETED"
	CaptureStatusCanceled  CaptureStatus = "CANCELED"
	CaptureStatusFailed    CaptureStatus = "FAILED"
)

// Settled reports whether the capture has cleared.
func (s CaptureStatus) Settled() bool {
	return s == CaptureStatusCompleted
}

// Terminal reports whether the capture can never clear.
func (s CaptureStatus) Terminal() bool {
	return s == CaptureStatusCanceled || s == CaptureStatusFailed
}

// Capture is the gateway-neutral view of a card charge.
type Capture struct {
	ID     string
	Status CaptureStatus
}

// CaptureCreateParams encapsulates the inputs for a card capture.
type CaptureCreateParams struct {
	AmountCents    int64
	Currency       string
	CustomerID     string
	CardID         string
	IdempotencyKey string
	Note           string
	ReferenceID    string
}

func (p CaptureCreateParams) toSquareRequest(locationID string) *sq.CreatePaymentRequest {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: p.IdempotencyKey,
		LocationID:     ptrString(locationID),
		CustomerID:     ptrString(p.CustomerID),
		SourceID:       p.CardID,
	}
	if p.AmountCents > 0 {
		req.AmountMoney = moneyPtr(p.AmountCents, p.Currency)
	}
	if trimmed := strings.TrimSpace(p.Note); trimmed != "" {
		req.Note = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(p.ReferenceID); trimmed != "" {
		req.ReferenceID = ptrString(trimmed)
	}
	return req
}

func captureFromPayment(payment *sq.Payment) *Capture {
	if payment == nil {
		return &Capture{}
	}
	return &Capture{
		ID:     stringValue(payment.GetID()),
		Status: CaptureStatus(strings.ToUpper(stringValue(payment.GetStatus()))),
	}
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
