package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Routing keys on the exchange.
const (
	RoutingRateUpdated = "fx.rate_updated"
	RoutingRefresh     = "fx.refresh"
)

// RateUpdatedMessage announces a freshly fetched rate. Consumers use it to drop
// memoized lookups of the pair; the rate itself is already in the shared cache.
type RateUpdatedMessage struct {
	ID        string    `json:"id"`
	Base      string    `json:"base"`
	Quote     string    `json:"quote"`
	Rate      float64   `json:"rate"`
	Date      string    `json:"date"`
	FetchedAt time.Time `json:"fetchedAt"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRateUpdatedMessage stamps a new message id and the publish time.
func NewRateUpdatedMessage(base, quote string, rate float64, date string, fetchedAt time.Time) *RateUpdatedMessage {
	return &RateUpdatedMessage{
		ID:        uuid.NewString(),
		Base:      base,
		Quote:     quote,
		Rate:      rate,
		Date:      date,
		FetchedAt: fetchedAt,
		Timestamp: time.Now(),
	}
}

func (m *RateUpdatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RateUpdatedMessageFromJSON(data []byte) (*RateUpdatedMessage, error) {
	var msg RateUpdatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Base == "" || msg.Quote == "" {
		return nil, fmt.Errorf("rate update without pair")
	}
	return &msg, nil
}

// RefreshRequest asks the worker to refetch pairs ("USD-ILS"). An empty list
// means every configured pair.
type RefreshRequest struct {
	ID          string    `json:"id"`
	Pairs       []string  `json:"pairs,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

func NewRefreshRequest(pairs ...string) *RefreshRequest {
	return &RefreshRequest{
		ID:          uuid.NewString(),
		Pairs:       pairs,
		RequestedAt: time.Now(),
	}
}

func (m *RefreshRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RefreshRequestFromJSON(data []byte) (*RefreshRequest, error) {
	var msg RefreshRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
