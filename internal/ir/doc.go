// Package ir provides the constrained value types used to build stable,
// comparable identities for deferred operations and queries.
//
// All other internal packages may import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types: structural identity must not depend on float formatting
//   - Object keys are ordered by UTF-16 code units (RFC 8785)
//   - Identities are SHA-256 digests over canonical JSON with a domain prefix
package ir
