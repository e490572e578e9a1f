// Package analyzer runs patchscope and activation analyses against a single
// loaded model. It is split by concern:
//
//   - analyzer.go: Analyzer type, construction, ModelInfo and Close.
//   - config.go: Config and package defaults.
//   - errors.go: error types the HTTP layer maps to status codes.
//   - admission.go: bounded queue plus in-flight slots.
//   - activations.go: per-layer hidden-state norms.
//   - patchscope.go: hidden-state transplant between prompts.
//   - indices.go: index resolution shared by both operations.
//
// The model is read-only after New. Hooks and KV caches are created per
// call, so concurrent requests never observe each other.
package analyzer
