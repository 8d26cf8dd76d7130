package remote

import (
	"context"
	"encoding/json"
)

// Predictor sends one reading and returns the predicted RUL.
type Predictor interface {
	Predict(ctx context.Context, reading json.RawMessage) (float64, error)
	Close() error
}

// RejectedError reports a reading the server refused or could not score.
// Message is the server's error text unchanged.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "server rejected reading: " + e.Message
}
