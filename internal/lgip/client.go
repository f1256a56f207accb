// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lgip

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"cecvol/internal/lgcrypto"
	"cecvol/internal/logger"
	"github.com/rs/zerolog"
)

// DefaultPort is the LG network control port
const DefaultPort = 9761

// State represents the connection state of the client
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StatePairing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StatePairing:
		return "pairing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// PairingState tracks how far a session got in establishing its key
type PairingState int

const (
	Unpaired PairingState = iota
	AwaitingKey
	Paired
)

func (p PairingState) String() string {
	switch p {
	case Unpaired:
		return "unpaired"
	case AwaitingKey:
		return "awaiting_key"
	case Paired:
		return "paired"
	default:
		return "unknown"
	}
}

// KeyStore persists derived session keys between runs
type KeyStore interface {
	Load(id string) ([]byte, bool, error)
	Save(id string, key []byte) error
}

// PairingCodeSource supplies the code shown on the television screen
type PairingCodeSource func() (string, error)

// StaticCode returns a source that always yields code
func StaticCode(code string) PairingCodeSource {
	return func() (string, error) {
		if code == "" {
			return "", fmt.Errorf("no pairing code configured (set lg.keycode to the code shown on the television)")
		}
		return code, nil
	}
}

// Dialer opens the TCP connection to the television
type Dialer func(network, address string, timeout time.Duration) (net.Conn, error)

// Backoff configures the wait before a reconnect
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Options configures a Client
type Options struct {
	Host            string
	Port            int
	ClientID        string
	Timeout         time.Duration
	DialTimeout     time.Duration
	KeyCheckCommand string
	Framing         lgcrypto.Framing
	KeyParams       lgcrypto.KeyParams
	Backoff         Backoff
	KeyStore        KeyStore
	PairingCode     PairingCodeSource
	Dial            Dialer
	Sleep           func(time.Duration)
}

func (o *Options) setDefaults() {
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.Timeout == 0 {
		o.Timeout = 2 * time.Second
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = 500 * time.Millisecond
	}
	if o.KeyCheckCommand == "" {
		o.KeyCheckCommand = "CURRENT_VOL"
	}
	if o.Framing == "" {
		o.Framing = lgcrypto.FramingRaw
	}
	if o.KeyParams.Iterations == 0 {
		o.KeyParams = lgcrypto.DefaultKeyParams()
	}
	if o.Backoff.InitialDelay == 0 {
		o.Backoff.InitialDelay = 250 * time.Millisecond
	}
	if o.Backoff.MaxDelay == 0 {
		o.Backoff.MaxDelay = 4 * time.Second
	}
	if o.Backoff.Multiplier < 1 {
		o.Backoff.Multiplier = 2
	}
	if o.PairingCode == nil {
		o.PairingCode = StaticCode("")
	}
	if o.Dial == nil {
		o.Dial = net.DialTimeout
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
}

// Session is one TCP connection together with its key material
type Session struct {
	conn         net.Conn
	reader       *bufio.Reader
	pairing      PairingState
	key          []byte
	lastActivity time.Time
}

func (s *Session) close() {
	if s != nil && s.conn != nil {
		s.conn.Close()
	}
}

// Client speaks the encrypted LG network control protocol. It is safe for
// concurrent use; exchanges are serialized.
type Client struct {
	opts    Options
	address string
	mutex   sync.Mutex
	state   State
	session *Session
	delay   time.Duration
	logger  zerolog.Logger
}

// NewClient creates a disconnected client
func NewClient(opts Options) *Client {
	opts.setDefaults()
	return &Client{
		opts:    opts,
		address: net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		state:   StateDisconnected,
		delay:   opts.Backoff.InitialDelay,
		logger:  logger.Component("lgip"),
	}
}

// Address returns the host:port the client dials
func (c *Client) Address() string {
	return c.address
}

// State returns the current connection state
func (c *Client) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// PairingState returns the pairing state of the current session
func (c *Client) PairingState() PairingState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.session == nil {
		return Unpaired
	}
	return c.session.pairing
}

// LastActivity returns when the television last acknowledged a command
func (c *Client) LastActivity() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.session == nil {
		return time.Time{}
	}
	return c.session.lastActivity
}

// Connect establishes a paired session if none is up
func (c *Client) Connect() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.session != nil {
		return nil
	}
	return c.connectLocked()
}

// Pair discards any session and pairs again with the configured code,
// ignoring a cached key.
func (c *Client) Pair() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.teardownLocked()

	c.state = StateConnecting
	sess, err := c.dial()
	if err != nil {
		c.state = StateDisconnected
		return err
	}
	return c.pairLocked(sess)
}

// Close tears down the session
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.teardownLocked()
	return nil
}

// Command sends one instruction such as "POWER off" and returns the reply
func (c *Client) Command(instruction string) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	fresh := false
	if c.session == nil {
		if err := c.connectLocked(); err != nil {
			return "", err
		}
		fresh = true
	}

	resp, err := c.exchange(c.session, instruction)
	if err == nil {
		c.delay = c.opts.Backoff.InitialDelay
		return resp, nil
	}

	perr := err.(*ProtocolError)
	if perr.Kind == ErrRejected {
		return "", perr
	}

	c.teardownLocked()
	if !perr.Retryable() || fresh {
		return "", perr
	}

	wait := c.nextDelay()
	c.logger.Warn().
		Err(perr).
		Str("instruction", instruction).
		Dur("backoff", wait).
		Msg("Exchange failed, reconnecting")
	c.opts.Sleep(wait)

	if err := c.connectLocked(); err != nil {
		return "", err
	}
	resp, err = c.exchange(c.session, instruction)
	if err != nil {
		if KindOf(err) != ErrRejected {
			c.teardownLocked()
		}
		return "", err
	}
	c.delay = c.opts.Backoff.InitialDelay
	return resp, nil
}

func (c *Client) nextDelay() time.Duration {
	wait := c.delay
	next := time.Duration(float64(c.delay) * c.opts.Backoff.Multiplier)
	if next > c.opts.Backoff.MaxDelay {
		next = c.opts.Backoff.MaxDelay
	}
	c.delay = next
	return wait
}

func (c *Client) keyID() string {
	return c.opts.Host + "|" + c.opts.ClientID
}

func (c *Client) dial() (*Session, error) {
	c.logger.Debug().Str("address", c.address).Msg("Dialing television")
	conn, err := c.opts.Dial("tcp", c.address, c.opts.DialTimeout)
	if err != nil {
		return nil, ioError("dial", err)
	}
	return &Session{conn: conn, reader: bufio.NewReader(conn), pairing: Unpaired}, nil
}

// connectLocked dials and brings a session to Ready. A cached key is tried
// first; if the television does not accept it the client pairs from scratch.
func (c *Client) connectLocked() error {
	c.state = StateConnecting
	sess, err := c.dial()
	if err != nil {
		c.state = StateDisconnected
		return err
	}

	key, ok, err := c.loadKey()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to load cached session key")
	}
	if ok {
		sess.key = key
		sess.pairing = AwaitingKey
		_, err := c.checkKey(sess)
		if err == nil {
			sess.pairing = Paired
			c.session = sess
			c.state = StateReady
			c.logger.Info().Str("address", c.address).Msg("Connected with cached session key")
			return nil
		}
		c.logger.Warn().Err(err).Msg("Cached session key not accepted, pairing again")
		sess.close()

		if sess, err = c.dial(); err != nil {
			c.state = StateDisconnected
			return err
		}
	}

	return c.pairLocked(sess)
}

func (c *Client) pairLocked(sess *Session) error {
	c.state = StatePairing
	sess.pairing = AwaitingKey

	code, err := c.opts.PairingCode()
	if err != nil {
		sess.close()
		c.state = StateDisconnected
		return &ProtocolError{Kind: ErrRejected, Op: "pair", Err: err}
	}

	sess.key = lgcrypto.DeriveSessionKey(code, c.opts.ClientID, c.opts.KeyParams)
	if _, err := c.checkKey(sess); err != nil {
		sess.close()
		c.state = StateDisconnected
		return fmt.Errorf("pairing failed: %w", err)
	}
	sess.pairing = Paired

	if c.opts.KeyStore != nil {
		if err := c.opts.KeyStore.Save(c.keyID(), sess.key); err != nil {
			c.logger.Error().Err(err).Msg("Failed to persist session key")
		}
	}

	c.session = sess
	c.state = StateReady
	c.logger.Info().Str("address", c.address).Msg("Paired with television")
	return nil
}

func (c *Client) loadKey() ([]byte, bool, error) {
	if c.opts.KeyStore == nil {
		return nil, false, nil
	}
	return c.opts.KeyStore.Load(c.keyID())
}

func (c *Client) teardownLocked() {
	if c.session != nil {
		c.session.close()
		c.session = nil
	}
	c.state = StateDisconnected
}

// exchange sends one instruction on a paired session.
// Every error it returns is a *ProtocolError.
func (c *Client) exchange(sess *Session, instruction string) (string, error) {
	if sess.pairing != Paired {
		return "", &ProtocolError{Kind: ErrRejected, Op: opName(instruction), Err: ErrNotPaired}
	}
	return c.roundTrip(sess, instruction)
}

// checkKey confirms a candidate key. It is the only instruction written while
// the session is still AwaitingKey.
func (c *Client) checkKey(sess *Session) (string, error) {
	return c.roundTrip(sess, c.opts.KeyCheckCommand)
}

func opName(instruction string) string {
	if f := strings.Fields(instruction); len(f) > 0 {
		return f[0]
	}
	return "command"
}

// roundTrip encrypts one instruction, writes it and waits for the reply
func (c *Client) roundTrip(sess *Session, instruction string) (string, error) {
	op := opName(instruction)
	if !strings.HasSuffix(instruction, "\r") {
		instruction += "\r"
	}

	frame, err := lgcrypto.Encrypt(sess.key, []byte(instruction))
	if err != nil {
		return "", &ProtocolError{Kind: ErrTransport, Op: op, Err: err}
	}

	if err := sess.conn.SetDeadline(time.Now().Add(c.opts.Timeout)); err != nil {
		return "", ioError(op, err)
	}
	if _, err := sess.conn.Write(c.opts.Framing.Encode(frame)); err != nil {
		return "", ioError(op, err)
	}

	reply, err := c.opts.Framing.ReadFrame(sess.reader)
	if err != nil {
		if errors.Is(err, lgcrypto.ErrTruncated) {
			return "", &ProtocolError{Kind: ErrDecrypt, Op: op, Err: err}
		}
		return "", ioError(op, err)
	}

	plain, err := lgcrypto.Decrypt(sess.key, reply)
	if err != nil {
		return "", &ProtocolError{Kind: ErrDecrypt, Op: op, Err: err}
	}

	// replies end in the terminator, often followed by carriage returns
	resp := strings.TrimRight(string(plain), "\r"+string(lgcrypto.ResponseTerminator))
	c.logger.Debug().
		Str("instruction", strings.TrimSpace(instruction)).
		Str("response", resp).
		Msg("Television replied")

	if resp == "NG" || strings.HasPrefix(resp, "ERROR") {
		return "", &ProtocolError{Kind: ErrRejected, Op: op, Response: resp}
	}

	sess.lastActivity = time.Now()
	return resp, nil
}
