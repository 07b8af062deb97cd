package coingecko

import (
	"encoding/json"
	"fmt"
	"time"
)

// PricePoint is one (timestamp, price) pair from the market_chart endpoint.
type PricePoint struct {
	Timestamp time.Time
	Price     float64 // NaN when the API reported null
}

// MarketChart is a decoded market_chart response.
type MarketChart struct {
	Prices []PricePoint
	Raw    []byte // response body as received
}

// marketChartResponse is the wire shape of /coins/{id}/market_chart.
type marketChartResponse struct {
	Prices [][]json.Number `json:"prices"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("coingecko http %d: %s", e.StatusCode, e.Body)
}
