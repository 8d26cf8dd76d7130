// Package model loads the RUL regression artifacts and runs inference.
//
// Two JSON artifacts are exported from the training environment:
//
//   - the scaler (scaler.json): a fitted per-feature affine transform in the
//     shape of a scikit-learn StandardScaler, MinMaxScaler, RobustScaler or
//     MaxAbsScaler (kind + fitted vectors);
//   - the network (rul-model.json): an ordered stack of dense,
//     batch_normalization and dropout layers with Keras activation names.
//
// Load(modelPath, scalerPath) validates every shape up front and returns an
// Engine. The Engine is immutable after construction and safe for concurrent
// use; Predict allocates its own buffers per call.
package model
