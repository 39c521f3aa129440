// Package stores maps per-user authorization flow records onto a
// [storage.Storage] collaborator.
//
// # Design
//
// One record exists per (channel, user, handler) triple, keyed as
// "{prefix}/{channel}/{user}/{handler}". Records are encoded with the
// versioned binary codec from package flow. The store is a thin, stateless
// view: it passes storage versions through untouched so the caller can run
// its own optimistic read-modify-write loop.
//
// # What this package must NOT do
//
//   - Import agentAuth or any sibling internal package.
//   - Apply flow policy (refresh, attempts, expiry decisions beyond IsActive).
//   - Retry on storage.ErrPreconditionFailed.
package stores
