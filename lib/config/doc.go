// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the relay's optional configuration file.
//
// The file is YAML, or JSON with comments when its name ends in .json
// or .jsonc. Keys mirror the command-line flags, grouped by section:
//
//	seedlink:
//	  address: rtserve.iris.washington.edu
//	  streams: IU_KONO:BHZ,GE_WLF
//	  keepalive: 300s
//	datalink:
//	  address: localhost:16000
//	  ack: true
//	relay:
//	  network: XX
//	  backoff: 10s
//	state:
//	  path: ${HOME}/seedrelay.state
//	  interval: 100
//	metrics:
//	  addr: 127.0.0.1:9180
//	log:
//	  verbosity: 1
//	  format: json
//
// [Default] supplies every value the file omits. Unknown keys are
// rejected. Path fields expand ${VAR} and ${VAR:-default}. Flags set on
// the command line override file values; that merge happens in the
// command, not here.
//
// Every validation failure wraps [ErrConfig].
package config
