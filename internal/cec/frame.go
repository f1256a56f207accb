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

package cec

import (
	"errors"
	"fmt"
	"strings"
)

// MaxOperands is the operand limit of a single CEC message
const MaxOperands = 14

// ErrInvalidFrame is returned for frames that cannot be put on the bus
var ErrInvalidFrame = errors.New("cec: invalid frame")

// Frame is one CEC message. A frame without an opcode is a poll.
type Frame struct {
	Source      LogicalAddress
	Destination LogicalAddress
	HasOpcode   bool
	Opcode      Opcode
	Operands    []byte
}

// NewFrame builds a frame with an opcode
func NewFrame(src, dst LogicalAddress, op Opcode, operands ...byte) Frame {
	return Frame{Source: src, Destination: dst, HasOpcode: true, Opcode: op, Operands: operands}
}

// PollFrame builds a header-only frame
func PollFrame(src, dst LogicalAddress) Frame {
	return Frame{Source: src, Destination: dst}
}

// IsPoll reports whether the frame carries only a header
func (f Frame) IsPoll() bool { return !f.HasOpcode }

// Encode returns the wire bytes: header (src<<4 | dst), opcode, operands
func (f Frame) Encode() ([]byte, error) {
	if f.Source > 0xF || f.Destination > 0xF {
		return nil, fmt.Errorf("%w: address out of range", ErrInvalidFrame)
	}
	if !f.HasOpcode {
		if len(f.Operands) > 0 {
			return nil, fmt.Errorf("%w: operands without opcode", ErrInvalidFrame)
		}
		return []byte{byte(f.Source)<<4 | byte(f.Destination)}, nil
	}
	if len(f.Operands) > MaxOperands {
		return nil, fmt.Errorf("%w: %d operands", ErrInvalidFrame, len(f.Operands))
	}
	out := make([]byte, 0, 2+len(f.Operands))
	out = append(out, byte(f.Source)<<4|byte(f.Destination), byte(f.Opcode))
	return append(out, f.Operands...), nil
}

// DecodeFrame parses wire bytes received from the adapter
func DecodeFrame(raw []byte) (Frame, error) {
	if len(raw) == 0 || len(raw) > 2+MaxOperands {
		return Frame{}, fmt.Errorf("%w: length %d", ErrInvalidFrame, len(raw))
	}
	f := Frame{
		Source:      LogicalAddress(raw[0] >> 4),
		Destination: LogicalAddress(raw[0] & 0xF),
	}
	if len(raw) > 1 {
		f.HasOpcode = true
		f.Opcode = Opcode(raw[1])
		if len(raw) > 2 {
			f.Operands = append([]byte(nil), raw[2:]...)
		}
	}
	return f, nil
}

func (f Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s->%s", f.Source, f.Destination)
	if f.IsPoll() {
		b.WriteString(" poll")
		return b.String()
	}
	fmt.Fprintf(&b, " %s", f.Opcode)
	if len(f.Operands) > 0 {
		fmt.Fprintf(&b, " [% x]", f.Operands)
	}
	return b.String()
}
