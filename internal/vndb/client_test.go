// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

package vndb

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

// startServer runs a one-connection fake API endpoint and returns its config.
// The handler owns the accepted connection.
func startServer(t *testing.T, handler func(conn net.Conn)) Config {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return Config{
		Host:              "127.0.0.1",
		Port:              addr.Port,
		DialTimeout:       2 * time.Second,
		ExchangeTimeout:   2 * time.Second,
		RequestsPerSecond: 1000,
	}
}

// readMsg reads one terminated message off the raw connection.
func readMsg(conn net.Conn) (string, error) {
	r := bufio.NewReader(conn)
	data, err := r.ReadString(eot)
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSuffix(data, string(rune(eot))), nil
}

// writeMsg writes one terminated message onto the raw connection.
func writeMsg(conn net.Conn, msg string) {
	conn.Write(append([]byte(msg), eot))
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name        string
		resp        string
		wantKeyword string
		wantPayload string
		wantOK      bool
	}{
		{
			name:        "ok without payload",
			resp:        "ok",
			wantKeyword: "ok",
			wantPayload: "",
			wantOK:      true,
		},
		{
			name:        "results with payload",
			resp:        `results {"num":1,"items":[]}`,
			wantKeyword: "results",
			wantPayload: `{"num":1,"items":[]}`,
			wantOK:      true,
		},
		{
			name:        "error with payload",
			resp:        `error {"id":"auth","msg":"bad password"}`,
			wantKeyword: "error",
			wantPayload: `{"id":"auth","msg":"bad password"}`,
			wantOK:      true,
		},
		{
			name:   "uppercase keyword rejected",
			resp:   "OK",
			wantOK: false,
		},
		{
			name:   "leading whitespace rejected",
			resp:   " ok",
			wantOK: false,
		},
		{
			name:   "empty response rejected",
			resp:   "",
			wantOK: false,
		},
		{
			name:   "digit prefix rejected",
			resp:   "404 not found",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keyword, payload, ok := ParseResponse(tt.resp)
			if ok != tt.wantOK {
				t.Fatalf("ParseResponse(%q) ok = %v, want %v", tt.resp, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if keyword != tt.wantKeyword {
				t.Errorf("keyword = %q, want %q", keyword, tt.wantKeyword)
			}
			if payload != tt.wantPayload {
				t.Errorf("payload = %q, want %q", payload, tt.wantPayload)
			}
		})
	}
}

func TestBuildVNQuery(t *testing.T) {
	tests := []struct {
		name string
		ids  []int
		want string
	}{
		{
			name: "single id",
			ids:  []int{17},
			want: "get vn basic (id=[17])",
		},
		{
			name: "two ids no results option",
			ids:  []int{17, 42},
			want: "get vn basic (id=[17,42])",
		},
		{
			name: "eleven ids adds results option",
			ids:  []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
			want: `get vn basic (id=[1,2,3,4,5,6,7,8,9,10,11]) {"results":11}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildVNQuery(tt.ids); got != tt.want {
				t.Errorf("buildVNQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSendAppendsTerminator(t *testing.T) {
	received := make(chan []byte, 1)
	cfg := startServer(t, func(conn net.Conn) {
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		received <- buf[:n]
	})

	conn, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.Send(context.Background(), "dbstats"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case got := <-received:
		want := append([]byte("dbstats"), eot)
		if string(got) != string(want) {
			t.Errorf("wire bytes = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the message")
	}
}

func TestReceiveStripsTerminator(t *testing.T) {
	cfg := startServer(t, func(conn net.Conn) {
		writeMsg(conn, "ok")
		// Keep the connection open so Receive stops at the terminator.
		time.Sleep(500 * time.Millisecond)
	})

	conn, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	got, err := conn.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Receive() = %q, want %q", got, "ok")
	}
}

func TestReceiveReturnsPartialOnEOF(t *testing.T) {
	cfg := startServer(t, func(conn net.Conn) {
		conn.Write([]byte("trunc")) // no terminator, then close
	})

	conn, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	got, err := conn.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if got != "trunc" {
		t.Errorf("Receive() = %q, want %q", got, "trunc")
	}
}

func TestCloseIdempotent(t *testing.T) {
	cfg := startServer(t, func(conn net.Conn) {})

	conn, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	first := conn.Close()
	second := conn.Close()
	if first != nil {
		t.Errorf("first Close() error = %v", first)
	}
	if second != first {
		t.Errorf("second Close() = %v, want same result as first", second)
	}
}

func TestNewSessionAnonymous(t *testing.T) {
	request := make(chan string, 1)
	cfg := startServer(t, func(conn net.Conn) {
		msg, _ := readMsg(conn)
		request <- msg
		writeMsg(conn, "ok")
	})

	conn, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	sess, err := NewSession(context.Background(), conn, cfg)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if sess == nil {
		t.Fatal("NewSession() returned nil session")
	}

	msg := <-request
	if !strings.HasPrefix(msg, "login ") {
		t.Fatalf("login command = %q, want login prefix", msg)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(strings.TrimPrefix(msg, "login ")), &body); err != nil {
		t.Fatalf("login body is not valid JSON: %v", err)
	}
	if body["protocol"] != float64(1) {
		t.Errorf("protocol = %v, want 1", body["protocol"])
	}
	if body["client"] != "vnrec" {
		t.Errorf("client = %v, want vnrec", body["client"])
	}
	if _, ok := body["username"]; ok {
		t.Error("anonymous login should not carry a username")
	}
	if _, ok := body["password"]; ok {
		t.Error("anonymous login should not carry a password")
	}
}

func TestNewSessionWithCredentials(t *testing.T) {
	request := make(chan string, 1)
	cfg := startServer(t, func(conn net.Conn) {
		msg, _ := readMsg(conn)
		request <- msg
		writeMsg(conn, "ok")
	})
	cfg.Username = "alice"
	cfg.Password = "hunter2"

	conn, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if _, err := NewSession(context.Background(), conn, cfg); err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	var body map[string]any
	msg := <-request
	if err := json.Unmarshal([]byte(strings.TrimPrefix(msg, "login ")), &body); err != nil {
		t.Fatalf("login body is not valid JSON: %v", err)
	}
	if body["username"] != "alice" {
		t.Errorf("username = %v, want alice", body["username"])
	}
	if body["password"] != "hunter2" {
		t.Errorf("password = %v, want hunter2", body["password"])
	}
}

func TestNewSessionErrors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantID   string
		wantMsg  string
	}{
		{
			name:     "server error with id and msg",
			response: `error {"id":"auth","msg":"bad password"}`,
			wantID:   "auth",
			wantMsg:  "bad password",
		},
		{
			name:     "server error without msg",
			response: `error {"id":"throttled"}`,
			wantID:   "throttled",
			wantMsg:  "Unknown server error",
		},
		{
			name:     "server error with garbage payload",
			response: `error not-json`,
			wantMsg:  "unknown server response",
		},
		{
			name:     "unexpected keyword",
			response: "results {}",
			wantMsg:  "unknown server response",
		},
		{
			name:     "unparsable response",
			response: "???",
			wantMsg:  "unknown server response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := startServer(t, func(conn net.Conn) {
				readMsg(conn)
				writeMsg(conn, tt.response)
			})

			conn, err := Dial(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Dial() error = %v", err)
			}
			defer conn.Close()

			_, err = NewSession(context.Background(), conn, cfg)
			if err == nil {
				t.Fatal("NewSession() succeeded, want error")
			}

			var protoErr *ProtocolError
			if !errors.As(err, &protoErr) {
				t.Fatalf("error = %T, want *ProtocolError", err)
			}
			if protoErr.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", protoErr.ID, tt.wantID)
			}
			if protoErr.Msg != tt.wantMsg {
				t.Errorf("Msg = %q, want %q", protoErr.Msg, tt.wantMsg)
			}
		})
	}
}

func TestGetVN(t *testing.T) {
	request := make(chan string, 1)
	cfg := startServer(t, func(conn net.Conn) {
		readMsg(conn) // login
		writeMsg(conn, "ok")
		msg, _ := readMsg(conn)
		request <- msg
		writeMsg(conn, `results {"num":2,"more":false,"items":[`+
			`{"id":17,"title":"Ever17","original":"","released":"2002-08-29","length":4},`+
			`{"id":42,"title":"Answer","original":"回答","released":"2010-01-01"}]}`)
	})

	conn, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	sess, err := NewSession(context.Background(), conn, cfg)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	items, err := sess.GetVN(context.Background(), []int{17, 42})
	if err != nil {
		t.Fatalf("GetVN() error = %v", err)
	}

	if got := <-request; got != "get vn basic (id=[17,42])" {
		t.Errorf("command = %q, want %q", got, "get vn basic (id=[17,42])")
	}

	if len(items) != 2 {
		t.Fatalf("GetVN() returned %d items, want 2", len(items))
	}
	if items[0].ID != 17 || items[0].Title != "Ever17" {
		t.Errorf("items[0] = %+v, want id 17 title Ever17", items[0])
	}
	if items[1].Original != "回答" {
		t.Errorf("items[1].Original = %q, want 回答", items[1].Original)
	}
}

func TestGetVNUnexpectedResponse(t *testing.T) {
	cfg := startServer(t, func(conn net.Conn) {
		readMsg(conn)
		writeMsg(conn, "ok")
		readMsg(conn)
		writeMsg(conn, "???")
	})

	conn, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	sess, err := NewSession(context.Background(), conn, cfg)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	items, err := sess.GetVN(context.Background(), []int{17})
	if err != nil {
		t.Fatalf("GetVN() error = %v, want nil for unexpected response", err)
	}
	if items != nil {
		t.Errorf("GetVN() = %v, want nil", items)
	}
}

func TestGetVNServerError(t *testing.T) {
	cfg := startServer(t, func(conn net.Conn) {
		readMsg(conn)
		writeMsg(conn, "ok")
		readMsg(conn)
		writeMsg(conn, `error {"id":"throttled","msg":"slow down"}`)
	})

	conn, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	sess, err := NewSession(context.Background(), conn, cfg)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	_, err = sess.GetVN(context.Background(), []int{17})
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("GetVN() error = %T (%v), want *ProtocolError", err, err)
	}
	if protoErr.ID != "throttled" {
		t.Errorf("ID = %q, want throttled", protoErr.ID)
	}
}

func TestGetVNEmptyIDs(t *testing.T) {
	sess := &Session{}
	items, err := sess.GetVN(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetVN(nil) error = %v", err)
	}
	if items != nil {
		t.Errorf("GetVN(nil) = %v, want nil", items)
	}
}

func TestURLs(t *testing.T) {
	if got := TitleURL(17); got != "https://vndb.org/v17" {
		t.Errorf("TitleURL(17) = %q", got)
	}
	if got := UserURL(1203); got != "https://vndb.org/u1203" {
		t.Errorf("UserURL(1203) = %q", got)
	}
}
