// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

// Package vndb implements a client for the VNDB TCP API.
//
// The wire protocol is line-less: every message, in both directions, is a
// UTF-8 string terminated by a single 0x04 (EOT) byte. Responses start with a
// lowercase keyword ("ok", "results", "error") optionally followed by a JSON
// payload.
package vndb

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

const (
	// DefaultHost is the public VNDB API endpoint.
	DefaultHost = "api.vndb.org"

	// DefaultPort is the plaintext API port.
	DefaultPort = 19534

	// eot terminates every message on the wire.
	eot = 0x04

	// protocolVersion is the API protocol revision spoken by this client.
	protocolVersion = 1

	clientName    = "vnrec"
	clientVersion = "1.0"
)

// Config holds the connection parameters for the VNDB API.
type Config struct {
	Host string
	Port int

	// Username and Password are optional. When both are set the login
	// command authenticates; otherwise the session is anonymous.
	Username string
	Password string

	DialTimeout     time.Duration
	ExchangeTimeout time.Duration

	// RequestsPerSecond throttles outbound commands. The public endpoint
	// terminates sessions that exceed its command quota.
	RequestsPerSecond float64
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 3
	}
	return c
}

// Connection is a single TCP connection to the API. It is not safe for
// concurrent use; the protocol is strictly request/response.
type Connection struct {
	conn    net.Conn
	reader  *bufio.Reader
	limiter *rate.Limiter

	exchangeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Dial opens a connection to the API endpoint described by cfg.
func Dial(ctx context.Context, cfg Config) (*Connection, error) {
	cfg = cfg.withDefaults()

	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}

	return &Connection{
		conn:            conn,
		reader:          bufio.NewReader(conn),
		limiter:         rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		exchangeTimeout: cfg.ExchangeTimeout,
	}, nil
}

// deadline picks the earlier of the context deadline and the configured
// exchange timeout. The zero time disables the deadline.
func (c *Connection) deadline(ctx context.Context) time.Time {
	var d time.Time
	if c.exchangeTimeout > 0 {
		d = time.Now().Add(c.exchangeTimeout)
	}
	if ctxD, ok := ctx.Deadline(); ok && (d.IsZero() || ctxD.Before(d)) {
		d = ctxD
	}
	return d
}

// Send writes msg to the server followed by the 0x04 terminator. The message
// itself must not contain the terminator byte.
func (c *Connection) Send(ctx context.Context, msg string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}

	buf := make([]byte, 0, len(msg)+1)
	buf = append(buf, msg...)
	buf = append(buf, eot)
	if _, err := c.conn.Write(buf); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// Receive reads one message from the server: everything up to the 0x04
// terminator, which is consumed but not returned. A connection closed before
// the terminator yields whatever was read so far.
func (c *Connection) Receive(ctx context.Context) (string, error) {
	if err := c.conn.SetReadDeadline(c.deadline(ctx)); err != nil {
		return "", &ConnectionError{Op: "read", Err: err}
	}

	data, err := c.reader.ReadString(eot)
	if err != nil && err != io.EOF {
		return "", &ConnectionError{Op: "read", Err: err}
	}
	return strings.TrimSuffix(data, string(rune(eot))), nil
}

// Exchange sends a command and waits for the reply.
func (c *Connection) Exchange(ctx context.Context, command string) (string, error) {
	if err := c.Send(ctx, command); err != nil {
		return "", err
	}
	return c.Receive(ctx)
}

// Close shuts the connection down. Safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// responseRe matches the leading keyword of a server response together with
// the whitespace separating it from the payload.
var responseRe = regexp.MustCompile(`^([a-z]+)\s*`)

// ParseResponse splits a raw server response into its keyword and payload.
// ok is false when the response does not start with a lowercase keyword.
func ParseResponse(resp string) (keyword, payload string, ok bool) {
	m := responseRe.FindStringSubmatch(resp)
	if m == nil {
		return "", "", false
	}
	return m[1], resp[len(m[0]):], true
}

// loginRequest is the JSON body of the login command.
type loginRequest struct {
	Protocol  int         `json:"protocol"`
	Client    string      `json:"client"`
	Clientver json.Number `json:"clientver"`
	Username  string      `json:"username,omitempty"`
	Password  string      `json:"password,omitempty"`
}

// serverError is the JSON payload of an "error" response.
type serverError struct {
	ID  string `json:"id"`
	Msg string `json:"msg"`
}

// Session is a logged-in connection. The API requires a successful login
// before any other command.
type Session struct {
	conn *Connection
}

// NewSession logs in on conn and returns the authenticated session. The
// connection remains owned by the caller and must still be closed by it.
func NewSession(ctx context.Context, conn *Connection, cfg Config) (*Session, error) {
	req := loginRequest{
		Protocol:  protocolVersion,
		Client:    clientName,
		Clientver: json.Number(clientVersion),
		Username:  cfg.Username,
		Password:  cfg.Password,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal login request: %w", err)
	}

	resp, err := conn.Exchange(ctx, "login "+string(body))
	if err != nil {
		return nil, err
	}

	keyword, payload, ok := ParseResponse(resp)
	if !ok {
		return nil, &ProtocolError{Msg: "unknown server response"}
	}

	switch keyword {
	case "ok":
		return &Session{conn: conn}, nil
	case "error":
		return nil, parseServerError(payload)
	default:
		return nil, &ProtocolError{Msg: "unknown server response"}
	}
}

// parseServerError turns an "error" payload into a ProtocolError. A payload
// that cannot be parsed degrades to an unknown-response error.
func parseServerError(payload string) *ProtocolError {
	var se serverError
	if err := json.Unmarshal([]byte(payload), &se); err != nil {
		return &ProtocolError{Msg: "unknown server response"}
	}
	if se.Msg == "" {
		se.Msg = "Unknown server error"
	}
	return &ProtocolError{ID: se.ID, Msg: se.Msg}
}

// VN is the metadata returned by the "get vn" command.
type VN struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Original    string `json:"original"`
	Released    string `json:"released"`
	Length      int    `json:"length"`
	Description string `json:"description"`
}

// vnResults is the JSON payload of a "results" response to "get vn".
type vnResults struct {
	Num   int  `json:"num"`
	More  bool `json:"more"`
	Items []VN `json:"items"`
}

// buildVNQuery renders the "get vn" command for a batch of ids. The server
// defaults to ten results per page, so a results option is attached only when
// the batch is larger than that.
func buildVNQuery(ids []int) string {
	var sb strings.Builder
	sb.WriteString("get vn basic (id=[")
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(id))
	}
	sb.WriteString("])")
	if len(ids) > 10 {
		fmt.Fprintf(&sb, ` {"results":%d}`, len(ids))
	}
	return sb.String()
}

// GetVN fetches basic metadata for the given title ids. An "error" response
// is returned as a ProtocolError; any other unexpected response yields a nil
// slice without an error, matching the best-effort nature of enrichment.
func (s *Session) GetVN(ctx context.Context, ids []int) ([]VN, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	resp, err := s.conn.Exchange(ctx, buildVNQuery(ids))
	if err != nil {
		return nil, err
	}

	keyword, payload, ok := ParseResponse(resp)
	if !ok {
		return nil, nil
	}
	switch keyword {
	case "results":
		var res vnResults
		if err := json.Unmarshal([]byte(payload), &res); err != nil {
			return nil, fmt.Errorf("unmarshal vn results: %w", err)
		}
		return res.Items, nil
	case "error":
		return nil, parseServerError(payload)
	default:
		return nil, nil
	}
}

// TitleURL returns the public page for a visual novel id.
func TitleURL(id int) string {
	return fmt.Sprintf("https://vndb.org/v%d", id)
}

// UserURL returns the public page for a user id.
func UserURL(id int) string {
	return fmt.Sprintf("https://vndb.org/u%d", id)
}
