// Package types defines the wire types shared by rulstack-server and rulctl:
// the eight-field battery cycle Reading, the Prediction payload and the
// generic error body.
//
// The feature order in FeatureNames is the column order the scaler and the
// model were fitted on. Reading.Vector always returns values in that order.
package types
