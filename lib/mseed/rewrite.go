// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mseed

import "fmt"

// RewriteNetwork overwrites the two-byte network code of record with
// network, right-padding with spaces. record is modified in place.
func RewriteNetwork(record []byte, network string) error {
	if len(record) < offsetNetwork+2 {
		return fmt.Errorf("%w: %d bytes", ErrShortRecord, len(record))
	}
	if len(network) > 2 {
		return fmt.Errorf("mseed: network code %q longer than 2 characters", network)
	}
	record[offsetNetwork] = ' '
	record[offsetNetwork+1] = ' '
	copy(record[offsetNetwork:offsetNetwork+2], network)
	return nil
}
