package market

import "time"

// Direction classifies the latest price move for a ticker relative to the
// immediately previous observation.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
	Flat Direction = "flat"
)

// Entry is the latest observation for a single ticker. PreviousPrice holds
// the value immediately prior to Price; on the first observation of a ticker
// it equals Price and Direction is Flat.
type Entry struct {
	Ticker        string    `json:"ticker"`
	Price         float64   `json:"price"`
	PreviousPrice float64   `json:"previous_price"`
	Time          time.Time `json:"timestamp"`
	Direction     Direction `json:"direction"`
}

// ChangePercent is the move from PreviousPrice to Price in percent. Zero when
// there is no previous price to compare against.
func (e Entry) ChangePercent() float64 {
	if e.PreviousPrice == 0 {
		return 0
	}
	return (e.Price - e.PreviousPrice) / e.PreviousPrice * 100
}
