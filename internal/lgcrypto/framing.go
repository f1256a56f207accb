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

package lgcrypto

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
)

// Framing selects how encrypted frames are carried on the stream.
type Framing string

const (
	// FramingRaw writes binary frames and reads one frame per read call.
	FramingRaw Framing = "raw"
	// FramingBase64 writes base64 text terminated by a newline.
	FramingBase64 Framing = "base64"
)

// MaxFrameSize bounds a single raw read.
const MaxFrameSize = 4096

// ParseFraming maps a configuration value to a Framing.
func ParseFraming(s string) (Framing, error) {
	switch Framing(s) {
	case "", FramingRaw:
		return FramingRaw, nil
	case FramingBase64:
		return FramingBase64, nil
	default:
		return "", fmt.Errorf("unknown framing %q", s)
	}
}

// Encode prepares an encrypted frame for the wire.
func (f Framing) Encode(frame []byte) []byte {
	if f != FramingBase64 {
		return frame
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(frame))+1)
	base64.StdEncoding.Encode(out, frame)
	out[len(out)-1] = '\n'
	return out
}

// ReadFrame reads one encrypted frame from r.
func (f Framing) ReadFrame(r *bufio.Reader) ([]byte, error) {
	if f != FramingBase64 {
		buf := make([]byte, MaxFrameSize)
		n, err := r.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		return nil, err
	}

	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	line = bytes.TrimRight(line, "\r\n")
	frame := make([]byte, base64.StdEncoding.DecodedLen(len(line)))
	n, err := base64.StdEncoding.Decode(frame, line)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return frame[:n], nil
}
