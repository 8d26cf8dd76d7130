package rulrpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"

	"github.com/rulstack/rulstack/pkg/types"
)

// ServiceName is the fully qualified gRPC service name, also used as the
// health-check service key.
const ServiceName = "rulstack.v1.Predictor"

// PredictFullMethod is the full method name of Predict.
const PredictFullMethod = "/" + ServiceName + "/Predict"

// PredictorServer is the server API for the Predictor service.
type PredictorServer interface {
	// Predict receives one raw reading object. Validation is left to the
	// implementation so every transport reports the same messages.
	Predict(context.Context, *json.RawMessage) (*types.Prediction, error)
}

// RegisterPredictorServer registers srv on s.
func RegisterPredictorServer(s grpc.ServiceRegistrar, srv PredictorServer) {
	s.RegisterService(&PredictorServiceDesc, srv)
}

// PredictorServiceDesc is the grpc.ServiceDesc for the Predictor service.
var PredictorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PredictorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: predictHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rulstack/v1/predictor",
}

func predictHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(json.RawMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PredictorServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PredictFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PredictorServer).Predict(ctx, req.(*json.RawMessage))
	}
	return interceptor(ctx, in, info, handler)
}

// PredictorClient is the client API for the Predictor service.
type PredictorClient struct {
	cc grpc.ClientConnInterface
}

// NewPredictorClient wraps cc. Calls always use the JSON codec.
func NewPredictorClient(cc grpc.ClientConnInterface) *PredictorClient {
	return &PredictorClient{cc: cc}
}

// Predict sends reading, which is marshalled as JSON (a types.Reading, a map
// or a json.RawMessage all work), and returns the prediction.
func (c *PredictorClient) Predict(ctx context.Context, reading interface{}, opts ...grpc.CallOption) (*types.Prediction, error) {
	if raw, ok := reading.(json.RawMessage); ok {
		reading = &raw
	}
	out := new(types.Prediction)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(Codec)}, opts...)
	if err := c.cc.Invoke(ctx, PredictFullMethod, reading, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
