package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCents(t *testing.T) {
	cases := []struct {
		name   string
		amount float64
		want   int64
	}{
		{"exact", 19.90, 1990},
		{"half up", 0.005, 1},
		{"half down negative", -0.005, -1},
		{"zero", 0, 0},
		{"large", 123456.78, 12345678},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ToCents(tc.amount))
		})
	}
}

func TestFromCentsRoundTrip(t *testing.T) {
	assert.InDelta(t, 19.90, FromCents(ToCents(19.90)), 0.0001)
	assert.InDelta(t, -5.50, FromCents(ToCents(-5.50)), 0.0001)
}

func TestLooksLikeUUID(t *testing.T) {
	assert.True(t, LooksLikeUUID("4b3e1e0a-5c2e-4c8f-9c9e-2f0e1a2b3c4d"))
	assert.False(t, LooksLikeUUID("not-a-uuid"))
}

func TestNewStampsAmountAndProcessor(t *testing.T) {
	req := Request{
		CorrelationID: "c1",
		Amount:        10.01,
		RequestedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	p := New(req, Fallback)
	assert.Equal(t, "c1", p.CorrelationID)
	assert.Equal(t, int64(1001), p.AmountCents)
	assert.Equal(t, Fallback, p.Processor)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := Payment{
		CorrelationID: "abc-123",
		AmountCents:   1050,
		RequestedAt:   time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Processor:     Default,
	}
	data, err := p.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, p.CorrelationID, decoded.CorrelationID)
	assert.Equal(t, p.AmountCents, decoded.AmountCents)
	assert.Equal(t, p.Processor, decoded.Processor)
	assert.True(t, p.RequestedAt.Equal(decoded.RequestedAt))
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
}
