package api

// HealthResponse is the payload for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Scaler string `json:"scaler"`
}

// rootText is the body of GET /. Existing clients ping it to wake the service.
const rootText = "helloworld"
