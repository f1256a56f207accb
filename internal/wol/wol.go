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

// Package wol sends Wake-on-LAN magic packets.
package wol

import (
	"bytes"
	"fmt"
	"net"

	"cecvol/internal/logger"
	"github.com/rs/zerolog"
)

// DefaultBroadcast is the limited broadcast address on the discard port.
const DefaultBroadcast = "255.255.255.255:9"

// PacketSize is the length of a magic packet
const PacketSize = 6 + 16*6

// MagicPacket returns six 0xff bytes followed by sixteen copies of mac.
func MagicPacket(mac net.HardwareAddr) ([]byte, error) {
	if len(mac) != 6 {
		return nil, fmt.Errorf("wake-on-lan needs a 6 byte hardware address, got %d", len(mac))
	}
	packet := make([]byte, 0, PacketSize)
	packet = append(packet, bytes.Repeat([]byte{0xff}, 6)...)
	for i := 0; i < 16; i++ {
		packet = append(packet, mac...)
	}
	return packet, nil
}

// Sender broadcasts magic packets for one target address.
type Sender struct {
	mac       net.HardwareAddr
	broadcast string
	logger    zerolog.Logger
}

// NewSender parses the target address. An empty broadcast uses DefaultBroadcast.
func NewSender(macAddress, broadcast string) (*Sender, error) {
	mac, err := net.ParseMAC(macAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid mac address %q: %w", macAddress, err)
	}
	if broadcast == "" {
		broadcast = DefaultBroadcast
	}
	return &Sender{
		mac:       mac,
		broadcast: broadcast,
		logger:    logger.New(),
	}, nil
}

// Target returns the hardware address packets are built for.
func (s *Sender) Target() net.HardwareAddr {
	return s.mac
}

// Wake sends one magic packet.
func (s *Sender) Wake() error {
	packet, err := MagicPacket(s.mac)
	if err != nil {
		return err
	}

	addr, err := net.ResolveUDPAddr("udp4", s.broadcast)
	if err != nil {
		return fmt.Errorf("failed to resolve broadcast address: %w", err)
	}

	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("failed to open broadcast socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write(packet); err != nil {
		return fmt.Errorf("failed to send wake packet: %w", err)
	}

	s.logger.Info().
		Str("mac", s.mac.String()).
		Str("broadcast", s.broadcast).
		Msg("Sent wake packet")
	return nil
}
