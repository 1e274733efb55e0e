// Package shared holds helpers used across the clinic API packages.
//
// The testutil subpackage provides a capturing slog handler for asserting on
// log output and fixtures for identities and licenses. It has no production
// callers and must only be imported from _test.go files.
package shared
