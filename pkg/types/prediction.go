package types

// Prediction is the success payload of a prediction call.
type Prediction struct {
	PredictedRUL float64 `json:"predicted_rul"`
}

// ErrorResponse is the generic JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
