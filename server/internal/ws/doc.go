// Package ws serves streaming predictions over WebSocket.
//
// A client sends one reading per text frame, using the same JSON object that
// POST /predict accepts, and receives one reply frame per reading in the
// order they were sent:
//
//	{"predicted_rul": 153.2}
//	{"error": "invalid reading: missing field \"decrement\""}
//
// A bad frame does not close the connection. Frames larger than 4 KiB do.
//
// Browsers do not apply CORS to WebSocket upgrades, so the hub checks the
// Origin header itself: WithAllowedOrigins takes the same list as the HTTP
// CORS policy, and a rejected origin gets 403. Requests without an Origin
// header are not from a browser and are admitted.
//
// Hub.Run(ctx) blocks until ctx is cancelled, then closes every connection.
// The server mounts the hub at /ws/predict.
package ws
