// Package internal holds helpers private to agentAuth and its bundled
// commands and examples.
//
// # Sub-packages
//
//   - httpclient: the retrying, traced HTTP client behind tokenservice and obo
//   - stores: flow record keys and encoding over storage.Storage
//
// # What this package must NOT do
//
//   - Export types that appear in the public agentAuth API.
package internal
