// Package provider abstracts the external text-generation backends an
// execution can be sent to. Every provider exposes the same lazy fragment
// sequence, so the execution engine does not care whether text arrives
// incrementally over a streaming response or all at once from a batch call.
package provider
