/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package forge wraps the code-forge REST API (GitHub-compatible) behind the
// handful of typed operations the relay needs: PR head lookup, issue and
// comment reads, comment writes, and atomic label replacement.
//
// A Client authenticates as a GitHub App: an RS256-signed app JWT is
// exchanged for a short-lived installation token, which is minted lazily
// behind a single-flight guard and reused until it nears expiry. The client
// never retries; callers decide whether a failure aborts their pipeline.
package forge
