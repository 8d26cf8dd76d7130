// Package rulrpc defines the rulstack.v1.Predictor gRPC service.
//
// Messages are JSON documents rather than protobuf: the request is the same
// reading object POST /predict accepts and the response is a
// types.Prediction. Both sides select the codec with the "json" content
// subtype, so the wire content-type is application/grpc+json. Importing this
// package registers the codec.
package rulrpc
