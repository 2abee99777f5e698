// Package errors provides the classified error primitives used by the photobuilder
// stages and the CLI.
//
// Stages never return plain failures across their boundary; they wrap causes in a
// ClassifiedError so the CLI can choose an exit code and the build service can
// write a readable failure message into its stage result.
//
// Example usage:
//
//	err := errors.WrapError(cause, errors.CategoryManifest, "save manifest").
//		WithContext("path", manifestPath).
//		Build()
package errors
