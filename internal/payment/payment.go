// Package payment holds the data model shared by the ingest API, the
// dispatcher and the store: the request a client submits, the record
// persisted once an upstream accepts it, and the processor enum that
// names which upstream actually succeeded.
package payment

import (
	"math"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Processor names one of the two upstream payment processors.
type Processor string

const (
	Default  Processor = "default"
	Fallback Processor = "fallback"
)

// Request is the client-provided payment submission. RequestedAt is left
// zero until a worker stamps it at dispatch time — never at ingest.
type Request struct {
	CorrelationID string
	Amount        float64
	RequestedAt   time.Time
	RetryCount    int
}

// LooksLikeUUID reports whether id is shaped like a UUID. It is a
// best-effort check, not a hard validation gate — callers still accept a
// request whose correlation_id fails this check.
func LooksLikeUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Payment is the authoritative, persisted record of a successfully
// forwarded payment. It is never mutated after creation.
type Payment struct {
	CorrelationID string
	AmountCents   int64
	RequestedAt   time.Time
	Processor     Processor
}

// wireRecord is the JSON shape written into the store and read back by
// summary scans: snake_case fields, amount in integer cents.
type wireRecord struct {
	CorrelationID string `json:"correlation_id"`
	AmountCents   int64  `json:"amount"`
	RequestedAt   string `json:"requested_at"`
	Processor     string `json:"payment_processor"`
}

// ToCents rounds amount*100 half-away-from-zero so sums accumulated over
// integer cents are always exact.
func ToCents(amount float64) int64 {
	scaled := amount * 100
	if scaled >= 0 {
		return int64(math.Floor(scaled + 0.5))
	}
	return int64(math.Ceil(scaled - 0.5))
}

// FromCents is the inverse of ToCents for display, rounded to 2 decimals.
func FromCents(cents int64) float64 {
	return math.Round(float64(cents)) / 100
}

// New builds the authoritative record for a successfully-dispatched
// request. processor records the upstream that actually succeeded, which
// may differ from the one first attempted.
func New(req Request, processor Processor) Payment {
	return Payment{
		CorrelationID: req.CorrelationID,
		AmountCents:   ToCents(req.Amount),
		RequestedAt:   req.RequestedAt,
		Processor:     processor,
	}
}

// Encode serializes p into the snake_case wire shape the store persists
// and summary scans decode.
func (p Payment) Encode() ([]byte, error) {
	return sonic.Marshal(wireRecord{
		CorrelationID: p.CorrelationID,
		AmountCents:   p.AmountCents,
		RequestedAt:   p.RequestedAt.UTC().Format(time.RFC3339),
		Processor:     string(p.Processor),
	})
}

// Decode reverses Encode. A decode failure is not fatal to a summary
// scan — callers skip the offending record and keep going.
func Decode(data []byte) (Payment, error) {
	var rec wireRecord
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return Payment{}, err
	}
	requestedAt, err := time.Parse(time.RFC3339, rec.RequestedAt)
	if err != nil {
		return Payment{}, err
	}
	return Payment{
		CorrelationID: rec.CorrelationID,
		AmountCents:   rec.AmountCents,
		RequestedAt:   requestedAt,
		Processor:     Processor(rec.Processor),
	}, nil
}
