package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event kinds recorded by the gateway
const (
	KindRelay        = "relay"
	KindTopUp        = "topup"
	KindLimitsUpdate = "limits_update"
)

// Entry is one audit record. Payload carries operation-specific detail such
// as the estimate, the decision outcome, and the transaction hash.
type Entry struct {
	ID        string         `json:"id" bson:"_id"`
	Kind      string         `json:"kind" bson:"kind"`
	Account   string         `json:"account,omitempty" bson:"account,omitempty"`
	Action    string         `json:"action,omitempty" bson:"action,omitempty"`
	Payload   map[string]any `json:"payload,omitempty" bson:"payload,omitempty"`
	CreatedAt time.Time      `json:"createdAt" bson:"created_at"`
}

// Alert is a high-cost relay notification kept for operator review
type Alert struct {
	ID           string    `json:"id" bson:"_id"`
	Account      string    `json:"account" bson:"account"`
	Action       string    `json:"action" bson:"action"`
	CostFen      int64     `json:"costFen" bson:"cost_fen"`
	ThresholdFen int64     `json:"thresholdFen" bson:"threshold_fen"`
	TxHash       string    `json:"txHash,omitempty" bson:"tx_hash,omitempty"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
}

// Query filters and paginates admin reads. Zero fields match everything;
// Page is 1-based.
type Query struct {
	Account  string
	Kind     string
	Action   string
	From     *time.Time
	To       *time.Time
	Page     int64
	PageSize int64
}

// Normalize applies pagination defaults and bounds
func (q *Query) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	if q.PageSize > 200 {
		q.PageSize = 200
	}
}

// Sink records gateway events and alerts and serves them back to the admin
// surface. Recording happens off the request path; failures are logged, not
// returned to callers.
type Sink interface {
	RecordEvent(ctx context.Context, entry Entry) error
	RecordAlert(ctx context.Context, alert Alert) error
	ListEvents(ctx context.Context, q Query) ([]Entry, int64, error)
	ListAlerts(ctx context.Context, q Query) ([]Alert, int64, error)
}

// NewEntry builds an audit entry with a fresh ID and timestamp
func NewEntry(kind, account, action string, payload map[string]any) Entry {
	return Entry{
		ID:        uuid.New().String(),
		Kind:      kind,
		Account:   account,
		Action:    action,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// NewAlert builds an alert with a fresh ID and timestamp
func NewAlert(account, action string, costFen, thresholdFen int64, txHash string) Alert {
	return Alert{
		ID:           uuid.New().String(),
		Account:      account,
		Action:       action,
		CostFen:      costFen,
		ThresholdFen: thresholdFen,
		TxHash:       txHash,
		CreatedAt:    time.Now().UTC(),
	}
}
