// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

package vndb

import "fmt"

// ConnectionError indicates a transport-level failure: dialing, writing or
// reading the socket. The wrapped error carries the network detail.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("vndb connection %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError indicates the server answered but the exchange failed at the
// protocol level. ID is the server's error identifier when it supplied one,
// empty otherwise.
type ProtocolError struct {
	ID  string
	Msg string
}

func (e *ProtocolError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("vndb protocol error %s: %s", e.ID, e.Msg)
	}
	return fmt.Sprintf("vndb protocol error: %s", e.Msg)
}
