// Package alerts evaluates threshold rules against every successful
// prediction and notifies webhooks when a rule fires or resolves.
//
// Rules compare predicted_rul or one reading field to a constant
// ("predicted_rul < 100"). Each rule has at most one firing alert; a rule
// that keeps matching re-fires only after its cooldown (default 15m).
// Resolved alerts stay visible through Active() for one hour.
package alerts
