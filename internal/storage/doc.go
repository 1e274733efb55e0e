// Package storage defines the repositories the clinic API persists through
// and an in-memory implementation of each.
//
// The MongoDB implementation lives in the mongo subpackage. Both satisfy the
// shared behaviour checked by storagetest.
package storage
