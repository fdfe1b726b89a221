package domain

import (
	"context"
	"time"
)

// SyncResult is the outcome of a single-invoice reconciliation pass
type SyncResult struct {
	InvoiceID       string     `json:"invoice_id"`
	MolliePaymentID string     `json:"mollie_payment_id,omitempty"`
	MollieStatus    string     `json:"mollie_status,omitempty"`
	LocalStatus     string     `json:"local_status,omitempty"`
	InvoiceStatus   string     `json:"invoice_status"`
	InvoiceUpdated  bool       `json:"invoice_updated"`
	Synced          bool       `json:"synced"`
	Message         string     `json:"message,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	Method          string     `json:"method,omitempty"`
	SyncedAt        time.Time  `json:"synced_at"`
}

// BatchDetail names one invoice's outcome inside a batch run
type BatchDetail struct {
	InvoiceID      string `bson:"invoice_id" json:"invoice_id"`
	InvoiceNumber  string `bson:"invoice_number" json:"invoice_number"`
	PreviousStatus string `bson:"previous_status" json:"previous_status"`
	NewStatus      string `bson:"new_status" json:"new_status"`
	MollieStatus   string `bson:"mollie_status,omitempty" json:"mollie_status,omitempty"`
	Updated        bool   `bson:"updated" json:"updated"`
	Error          string `bson:"error,omitempty" json:"error,omitempty"`
}

// BatchSyncSummary aggregates a batch reconciliation run.
// Every invoice lands in exactly one of the synced / no-payment / error
// buckets, so Total == Synced + NoPayment + Errors always holds.
type BatchSyncSummary struct {
	Total     int           `bson:"total" json:"total"`
	Synced    int           `bson:"synced" json:"synced"`
	Updated   int           `bson:"updated" json:"updated"`
	NoPayment int           `bson:"no_payment" json:"no_payment"`
	Errors    int           `bson:"errors" json:"errors"`
	Details   []BatchDetail `bson:"details" json:"details"`
}

// SyncRun is the persisted record of the last batch reconciliation
type SyncRun struct {
	ID         string           `bson:"_id,omitempty" json:"id"`
	LastSyncAt time.Time        `bson:"last_sync_at" json:"last_sync_at"`
	SyncedBy   string           `bson:"synced_by" json:"synced_by"`
	Summary    BatchSyncSummary `bson:"summary" json:"summary"`
}

// SyncRunRepository persists the latest batch run for the status endpoint
type SyncRunRepository interface {
	Save(ctx context.Context, run *SyncRun) error
	GetLast(ctx context.Context) (*SyncRun, error)
}
