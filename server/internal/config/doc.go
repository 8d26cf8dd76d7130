// Package config loads the rulstack-server configuration from a YAML file.
//
// Config fields:
//   - Server.Host, HTTPPort, GRPCPort  listeners (defaults 0.0.0.0, 3000, 50051; grpc 0 = off)
//   - Server.MaxBodyBytes              prediction body cap (default 1 MiB)
//   - Server.CORS.AllowedOrigins       browser origins (default "*")
//   - Server.Stream                    WebSocket stream on /ws/predict (default on)
//   - Model.Path, Model.ScalerPath     artifacts (default model/rul-model.json, model/scaler.json)
//   - Model.Watch                      log a restart hint when artifacts change (default on)
//   - Alerts.Rules, Alerts.Webhooks    low-RUL alerting
//   - Log.Level, Log.Format            slog settings (default info, json)
//
// Load(path) applies defaults before unmarshalling, then validates. Load("")
// returns the defaults unchanged. WatchArtifacts reports on-disk changes to
// the artifact files; it never reloads anything itself.
package config
