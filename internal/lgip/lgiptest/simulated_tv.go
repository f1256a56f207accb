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

// Package lgiptest provides an in-process LG television for tests.
package lgiptest

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"sync"

	"cecvol/internal/lgcrypto"
)

// Fault is a scripted misbehaviour applied to the next command
type Fault int

const (
	// FaultNone answers normally; useful as a placeholder in a fault sequence
	FaultNone Fault = iota
	// FaultReject answers NG
	FaultReject
	// FaultDrop closes the connection without answering
	FaultDrop
	// FaultTruncate answers with a frame shorter than one block
	FaultTruncate
	// FaultStall reads the command and never answers
	FaultStall
)

// SimulatedTV accepts LG network control connections on a loopback port.
// It knows one pairing code and answers OK to every command it can decrypt.
type SimulatedTV struct {
	listener net.Listener
	key      []byte
	framing  lgcrypto.Framing

	mutex    sync.Mutex
	accepts  int
	commands []string
	faults   []Fault
	replies  map[string]string
	conns    []net.Conn
	wg       sync.WaitGroup
}

// NewSimulatedTV starts a television that accepts keys derived from code and clientID.
func NewSimulatedTV(code, clientID string, framing lgcrypto.Framing) (*SimulatedTV, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	if framing == "" {
		framing = lgcrypto.FramingRaw
	}
	tv := &SimulatedTV{
		listener: listener,
		key:      lgcrypto.DeriveSessionKey(code, clientID, lgcrypto.DefaultKeyParams()),
		framing:  framing,
		replies:  map[string]string{"CURRENT_VOL": "VOL:11"},
	}
	tv.wg.Add(1)
	go tv.acceptLoop()
	return tv, nil
}

// Key returns the session key the television accepts
func (tv *SimulatedTV) Key() []byte {
	return tv.key
}

// Host returns the loopback host
func (tv *SimulatedTV) Host() string {
	host, _, _ := net.SplitHostPort(tv.listener.Addr().String())
	return host
}

// Port returns the listening port
func (tv *SimulatedTV) Port() int {
	_, port, _ := net.SplitHostPort(tv.listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// Accepts returns how many connections were accepted
func (tv *SimulatedTV) Accepts() int {
	tv.mutex.Lock()
	defer tv.mutex.Unlock()
	return tv.accepts
}

// Commands returns every decrypted instruction, without the trailing \r
func (tv *SimulatedTV) Commands() []string {
	tv.mutex.Lock()
	defer tv.mutex.Unlock()
	out := make([]string, len(tv.commands))
	copy(out, tv.commands)
	return out
}

// CommandsExcept returns Commands without entries equal to skip
func (tv *SimulatedTV) CommandsExcept(skip string) []string {
	out := make([]string, 0)
	for _, c := range tv.Commands() {
		if c != skip {
			out = append(out, c)
		}
	}
	return out
}

// Inject queues faults for the following commands
func (tv *SimulatedTV) Inject(faults ...Fault) {
	tv.mutex.Lock()
	defer tv.mutex.Unlock()
	tv.faults = append(tv.faults, faults...)
}

// Reply sets the answer for an instruction word
func (tv *SimulatedTV) Reply(instruction, answer string) {
	tv.mutex.Lock()
	defer tv.mutex.Unlock()
	tv.replies[instruction] = answer
}

// DropConnections closes every open connection, as the television does when idle
func (tv *SimulatedTV) DropConnections() {
	tv.mutex.Lock()
	defer tv.mutex.Unlock()
	for _, c := range tv.conns {
		c.Close()
	}
	tv.conns = nil
}

// Close stops the television
func (tv *SimulatedTV) Close() error {
	err := tv.listener.Close()
	tv.DropConnections()
	tv.wg.Wait()
	return err
}

func (tv *SimulatedTV) acceptLoop() {
	defer tv.wg.Done()
	for {
		conn, err := tv.listener.Accept()
		if err != nil {
			return
		}
		tv.mutex.Lock()
		tv.accepts++
		tv.conns = append(tv.conns, conn)
		tv.mutex.Unlock()

		tv.wg.Add(1)
		go tv.serve(conn)
	}
}

func (tv *SimulatedTV) nextFault() Fault {
	tv.mutex.Lock()
	defer tv.mutex.Unlock()
	if len(tv.faults) == 0 {
		return FaultNone
	}
	f := tv.faults[0]
	tv.faults = tv.faults[1:]
	return f
}

func (tv *SimulatedTV) serve(conn net.Conn) {
	defer tv.wg.Done()
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		frame, err := tv.framing.ReadFrame(reader)
		if err != nil {
			return
		}
		plain, err := lgcrypto.Decrypt(tv.key, frame)
		if err != nil || !wellFormed(plain) {
			// wrong key: the set hangs up
			return
		}
		instruction := strings.TrimSuffix(string(plain), "\r")

		tv.mutex.Lock()
		tv.commands = append(tv.commands, instruction)
		answer, ok := tv.replies[firstWord(instruction)]
		tv.mutex.Unlock()
		if !ok {
			answer = "OK"
		}

		switch tv.nextFault() {
		case FaultReject:
			answer = "NG"
		case FaultDrop:
			return
		case FaultTruncate:
			if _, err := conn.Write(tv.framing.Encode([]byte{0x01, 0x02, 0x03})); err != nil {
				return
			}
			continue
		case FaultStall:
			continue
		}

		reply, err := lgcrypto.Encrypt(tv.key, append([]byte(answer), lgcrypto.ResponseTerminator))
		if err != nil {
			return
		}
		if _, err := conn.Write(tv.framing.Encode(reply)); err != nil {
			return
		}
	}
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

func wellFormed(plain []byte) bool {
	if len(plain) == 0 || plain[len(plain)-1] != '\r' {
		return false
	}
	for _, b := range plain[:len(plain)-1] {
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return true
}
