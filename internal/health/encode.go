package health

import (
	"encoding/json"
	"time"

	"paydispatch/internal/payment"
	"paydispatch/internal/upstream"
)

// wireState is the shape persisted to the store's single health slot.
type wireState struct {
	Processor       string    `json:"processor"`
	Failing         bool      `json:"failing"`
	MinResponseTime int       `json:"min_response_time_ms"`
	SampledAt       time.Time `json:"sampled_at"`
}

func encode(p payment.Processor, state upstream.HealthState) ([]byte, error) {
	return json.Marshal(wireState{
		Processor:       string(p),
		Failing:         state.Failing,
		MinResponseTime: state.MinResponseTime,
		SampledAt:       state.SampledAt,
	})
}
