// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Address fills in the parts of a "host:port" server address that the
// user left out. Both SeedLink and DataLink accept "host", ":port",
// "host:port" or "host:" and fall back to a protocol default for the
// missing part.
//
//	Address(":18000", "localhost", 18000)   // "localhost:18000"
//	Address("rtserve", "localhost", 18000)  // "rtserve:18000"
func Address(address, defaultHost string, defaultPort int) (string, error) {
	host, port := address, ""
	if index := strings.LastIndex(address, ":"); index >= 0 && !strings.HasSuffix(address, "]") {
		host, port = address[:index], address[index+1:]
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	if host == "" {
		host = defaultHost
	}
	if port == "" {
		port = strconv.Itoa(defaultPort)
	}
	number, err := strconv.Atoi(port)
	if err != nil || number <= 0 || number > 65535 {
		return "", fmt.Errorf("invalid port %q in address %q", port, address)
	}
	return net.JoinHostPort(host, port), nil
}
