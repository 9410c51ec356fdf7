// Package api wires the three HTTP routes onto echo: accepting a
// payment, answering a summary range query, and purging the store.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"paydispatch/internal/payment"
	"paydispatch/internal/store"
)

// Queue is the subset of queue.Queue the ingest handler needs.
type Queue interface {
	Put(req payment.Request)
}

// Store is the subset of store.Store the summary/purge handlers need.
type Store interface {
	RangeByScore(ctx context.Context, p payment.Processor, from, to float64) ([]store.ScoredRecord, error)
	PurgeAll(ctx context.Context) error
}

type paymentRequest struct {
	Amount        float64 `json:"amount"`
	CorrelationID string  `json:"correlationId"`
}

type processorSummary struct {
	TotalRequests int     `json:"totalRequests"`
	TotalAmount   float64 `json:"totalAmount"`
}

type summaryResponse struct {
	Default  processorSummary `json:"default"`
	Fallback processorSummary `json:"fallback"`
}

// Handlers holds the dependencies shared by all three routes.
type Handlers struct {
	queue Queue
	store Store
}

// New builds a Handlers and registers its routes on e.
func New(e *echo.Echo, queue Queue, store Store) *Handlers {
	h := &Handlers{queue: queue, store: store}
	e.POST("/payments", h.Ingest)
	e.GET("/payments-summary", h.Summary)
	e.POST("/purge-payments", h.Purge)
	return h
}

// Ingest accepts a payment submission, enqueues it, and returns
// immediately — no upstream call happens on this request path.
func (h *Handlers) Ingest(c echo.Context) error {
	ctx := c.Request().Context()
	tracer := otel.Tracer("api")
	_, span := tracer.Start(ctx, "api.ingest", trace.WithAttributes(
		attribute.String("handler", "payments"),
	))
	defer span.End()

	var req paymentRequest
	if err := sonic.ConfigFastest.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		span.RecordError(err)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if req.CorrelationID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "correlationId is required"})
	}

	span.SetAttributes(
		attribute.Float64("payment.amount", req.Amount),
		attribute.String("payment.correlation_id", req.CorrelationID),
	)

	h.queue.Put(payment.Request{
		CorrelationID: req.CorrelationID,
		Amount:        req.Amount,
	})

	return c.JSON(http.StatusCreated, echo.Map{"msg": "payment created"})
}

// Summary answers the aggregate totals for both processors over an
// optional [from, to] time range (default: the last 30 days up to now),
// decoding every persisted record in range and skipping any that fail to
// decode.
func (h *Handlers) Summary(c echo.Context) error {
	ctx := c.Request().Context()
	from, to, err := parseRange(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	defaultSummary, err := h.summarizeOne(ctx, payment.Default, from, to)
	if err != nil {
		return c.NoContent(http.StatusInternalServerError)
	}
	fallbackSummary, err := h.summarizeOne(ctx, payment.Fallback, from, to)
	if err != nil {
		return c.NoContent(http.StatusInternalServerError)
	}

	return c.JSON(http.StatusOK, summaryResponse{
		Default:  defaultSummary,
		Fallback: fallbackSummary,
	})
}

func (h *Handlers) summarizeOne(ctx context.Context, p payment.Processor, from, to float64) (processorSummary, error) {
	records, err := h.store.RangeByScore(ctx, p, from, to)
	if err != nil {
		return processorSummary{}, err
	}

	var summary processorSummary
	var totalCents int64
	for _, rec := range records {
		pay, err := payment.Decode(rec.Bytes)
		if err != nil {
			continue
		}
		summary.TotalRequests++
		totalCents += pay.AmountCents
	}
	summary.TotalAmount = payment.FromCents(totalCents)
	return summary, nil
}

func parseRange(c echo.Context) (from, to float64, err error) {
	now := time.Now()
	from = float64(now.Add(-30 * 24 * time.Hour).Unix())
	to = float64(now.UnixNano()) / 1e9

	if v := c.QueryParam("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return 0, 0, err
		}
		from = float64(parsed.Unix())
	}

	if v := c.QueryParam("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return 0, 0, err
		}
		to = float64(parsed.Unix())
	}

	return from, to, nil
}

// Purge empties the store of every persisted payment.
func (h *Handlers) Purge(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.store.PurgeAll(ctx); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"msg": "payments purged"})
}
