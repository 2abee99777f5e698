// Package build runs the photobuilder stages. Every entry point (CLI, watch
// loop, tests) goes through Service so run ids, metrics and history are
// recorded the same way.
//
// A stage failure is reported in Result; the error return is reserved for
// cancellation.
package build
