// Package storage defines the key/value collaborator flow records are kept
// in, plus two implementations: [MemoryStorage] for tests and single-process
// hosts, and [RedisStorage] for shared deployments.
//
// # Optimistic concurrency
//
// Every stored [Record] carries an opaque [Version]. Read returns the current
// version; Write takes the version the caller read and fails with
// [ErrPreconditionFailed] when the record has changed since. [NoVersion]
// means "the record did not exist when I read": such a write only succeeds
// if the key is still absent. [AnyVersion] skips the check.
//
// # What this package must NOT do
//
//   - Interpret record bytes.
//   - Retry on conflict (callers own the read-modify-write loop).
package storage

import (
	"context"
	"errors"
)

// Version is an opaque concurrency token.
type Version string

const (
	// NoVersion marks a record that was absent at read time. Writing with it
	// is create-only.
	NoVersion Version = ""
	// AnyVersion disables the concurrency check for a write.
	AnyVersion Version = "*"
)

var (
	// ErrPreconditionFailed reports a write whose version no longer matches.
	ErrPreconditionFailed = errors.New("storage precondition failed")
	// ErrUnavailable marks backend failures (network, server errors).
	ErrUnavailable = errors.New("storage backend unavailable")
)

// Record is one stored value and its version.
type Record struct {
	Data    []byte
	Version Version
}

// Storage is the key/value contract. Missing keys are simply absent from
// Read results; Delete is idempotent.
type Storage interface {
	Read(ctx context.Context, keys []string) (map[string]Record, error)
	Write(ctx context.Context, changes map[string]Record) error
	Delete(ctx context.Context, keys []string) error
}

func versionMatches(expected Version, exists bool, current Version) bool {
	switch expected {
	case AnyVersion:
		return true
	case NoVersion:
		return !exists
	default:
		return exists && current == expected
	}
}
