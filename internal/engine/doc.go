// Package engine runs executions asynchronously. Each execution is driven by
// one worker goroutine that calls the selected provider, publishes fragments
// to the execution's channel on the EventBus, and persists the terminal state
// to the store.
package engine
