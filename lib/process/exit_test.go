// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestCode(t *testing.T) {
	base := errors.New("sink unreachable")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", base, 1},
		{"coded", WithCode(2, base), 2},
		{"wrapped coded", fmt.Errorf("relay: %w", WithCode(3, base)), 3},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Code(test.err); got != test.want {
				t.Errorf("Code = %d, want %d", got, test.want)
			}
		})
	}

	if WithCode(2, nil) != nil {
		t.Error("WithCode(nil) should stay nil")
	}
	if !errors.Is(WithCode(2, base), base) {
		t.Error("ExitError does not unwrap")
	}
}

func TestReport(t *testing.T) {
	var buffer bytes.Buffer
	Report(&buffer, WithCode(2, errors.New("sink unreachable")))
	if got := buffer.String(); got != "error: sink unreachable\n" {
		t.Errorf("Report wrote %q", got)
	}

	buffer.Reset()
	Report(&buffer, &ExitError{Code: 1})
	Report(&buffer, nil)
	if buffer.Len() != 0 {
		t.Errorf("Report wrote %q for a silent error", buffer.String())
	}
}
