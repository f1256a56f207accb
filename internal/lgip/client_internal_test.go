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
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeRequiresPairedSession(t *testing.T) {
	for _, state := range []PairingState{Unpaired, AwaitingKey} {
		t.Run(state.String(), func(t *testing.T) {
			local, remote := net.Pipe()
			defer local.Close()
			defer remote.Close()

			c := NewClient(Options{Host: "127.0.0.1"})
			sess := &Session{conn: local, pairing: state}

			_, err := c.exchange(sess, "POWER off")
			require.Error(t, err)
			assert.Equal(t, ErrRejected, KindOf(err))
			assert.True(t, errors.Is(err, ErrNotPaired))

			var perr *ProtocolError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "POWER", perr.Op)

			// nothing reached the wire
			require.NoError(t, remote.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
			n, err := remote.Read(make([]byte, 1))
			assert.Zero(t, n)
			assert.Error(t, err)
		})
	}
}
