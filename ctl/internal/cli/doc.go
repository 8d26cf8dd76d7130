// Package cli implements the rulctl command tree.
//
//	rulctl predict   send one reading to a running server (HTTP or gRPC)
//	rulctl stats     summarise the server's /metrics
//	rulctl inspect   load artifacts locally and describe them
//	rulctl version   print build information
//
// Global settings come from flags, RULCTL_* environment variables
// (RULCTL_SERVER, RULCTL_GRPC_ADDR, RULCTL_TIMEOUT, RULCTL_TRANSPORT) or
// $HOME/.rulctl.yaml, in that order of precedence.
package cli
