package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/rulstack/rulstack/pkg/rulrpc"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	defaultAttempts   = 5
)

// GRPCClient calls the Predictor service of rulstack-server.
type GRPCClient struct {
	conn     *grpc.ClientConn
	client   *rulrpc.PredictorClient
	timeout  time.Duration
	attempts int
	initial  time.Duration
}

// GRPCOption customises a GRPCClient.
type GRPCOption func(*GRPCClient)

// WithAttempts sets how many times a call is tried before giving up.
func WithAttempts(n int) GRPCOption {
	return func(c *GRPCClient) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithBackoff sets the first retry delay. Later delays double up to 60s.
func WithBackoff(initial time.Duration) GRPCOption {
	return func(c *GRPCClient) { c.initial = initial }
}

// DialGRPC creates a client for addr (host:port). The connection is
// established lazily on the first call.
func DialGRPC(addr string, timeout time.Duration, opts ...GRPCOption) (*GRPCClient, error) {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials())) //nolint:staticcheck
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c := &GRPCClient{
		conn:     conn,
		client:   rulrpc.NewPredictorClient(conn),
		timeout:  timeout,
		attempts: defaultAttempts,
		initial:  backoffInitial,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Predict calls Predictor/Predict, retrying transient failures.
func (c *GRPCClient) Predict(ctx context.Context, reading json.RawMessage) (float64, error) {
	bo := newBackoff(c.initial)

	for attempt := 1; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.client.Predict(callCtx, reading)
		cancel()
		if err == nil {
			return resp.PredictedRUL, nil
		}

		if isPermanentError(err) {
			st := status.Convert(err)
			if st.Code() == codes.InvalidArgument || st.Code() == codes.Internal {
				return 0, &RejectedError{Message: st.Message()}
			}
			return 0, err
		}
		if attempt >= c.attempts {
			return 0, fmt.Errorf("predict: giving up after %d attempts: %w", attempt, err)
		}

		wait := bo.next()
		slog.Warn("remote: predict failed, will retry",
			"attempt", attempt,
			"code", status.Code(err).String(),
			"retry_in", wait)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Close releases the connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// isPermanentError returns true for gRPC errors that a retry cannot fix.
// codes.Internal means the model itself failed on this reading.
func isPermanentError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Internal, codes.Unimplemented,
		codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff(initial time.Duration) *backoff {
	return &backoff{current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}
