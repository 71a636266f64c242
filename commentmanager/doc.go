/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package commentmanager maintains the single marker-tagged status comment
// each issue carries. Render is a pure function from the issue's derived
// state to markdown; Manager.Upsert finds the comment through a three-tier
// fallback (mapping table, marker scan, create) so exactly one rolling
// comment survives regardless of prior state.
package commentmanager
