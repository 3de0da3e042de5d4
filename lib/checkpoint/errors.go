// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import "errors"

var (
	// ErrNotFound is returned by Load when no checkpoint has been
	// saved yet.
	ErrNotFound = errors.New("checkpoint: not found")

	// ErrConfig is returned for an unusable checkpoint specification.
	ErrConfig = errors.New("checkpoint: invalid configuration")

	// ErrCorrupt is returned by Load when stored data fails to decode
	// or verify.
	ErrCorrupt = errors.New("checkpoint: corrupt")
)
