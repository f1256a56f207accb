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

//go:build linux

package cec

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Kernel CEC framework ABI, see include/uapi/linux/cec.h

const (
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | uintptr('a')<<8 | nr
}

type cecCaps struct {
	Driver            [32]byte
	Name              [32]byte
	AvailableLogAddrs uint32
	Capabilities      uint32
	Version           uint32
}

type cecLogAddrs struct {
	LogAddr           [4]uint8
	LogAddrMask       uint16
	CECVersion        uint8
	NumLogAddrs       uint8
	VendorID          uint32
	Flags             uint32
	OSDName           [15]byte
	PrimaryDeviceType [4]uint8
	LogAddrType       [4]uint8
	AllDeviceTypes    [4]uint8
	Features          [4][12]uint8
}

type cecMsg struct {
	TxTs          uint64
	RxTs          uint64
	Len           uint32
	Timeout       uint32
	Sequence      uint32
	Flags         uint32
	Msg           [16]uint8
	Reply         uint8
	RxStatus      uint8
	TxStatus      uint8
	TxArbLostCnt  uint8
	TxNackCnt     uint8
	TxLowDriveCnt uint8
	TxErrorCnt    uint8
}

var (
	cecAdapGCaps     = ioc(iocRead|iocWrite, 0, unsafe.Sizeof(cecCaps{}))
	cecAdapGPhysAddr = ioc(iocRead, 1, unsafe.Sizeof(uint16(0)))
	cecAdapGLogAddrs = ioc(iocRead, 3, unsafe.Sizeof(cecLogAddrs{}))
	cecAdapSLogAddrs = ioc(iocRead|iocWrite, 4, unsafe.Sizeof(cecLogAddrs{}))
	cecTransmit      = ioc(iocRead|iocWrite, 5, unsafe.Sizeof(cecMsg{}))
	cecReceive       = ioc(iocRead|iocWrite, 6, unsafe.Sizeof(cecMsg{}))
	cecSMode         = ioc(iocWrite, 9, unsafe.Sizeof(uint32(0)))
)

const (
	capLogAddrs = 1 << 1

	modeInitiator = 1 << 0
	modeFollower  = 1 << 4

	txStatusOK         = 1 << 0
	txStatusArbLost    = 1 << 1
	txStatusNack       = 1 << 2
	txStatusLowDrive   = 1 << 3
	txStatusError      = 1 << 4
	txStatusMaxRetries = 1 << 5

	cecVersion14 = 5

	logAddrTypeRecord   = 1
	logAddrTypePlayback = 3

	primDevTypeRecord   = 1
	primDevTypePlayback = 4

	allDevTypeRecord   = 0x40
	allDevTypePlayback = 0x10

	logAddrInvalid = 0xff
)

// LinuxAdapter drives a /dev/cecN device through the kernel CEC framework
type LinuxAdapter struct {
	path  string
	fd    int
	mutex sync.Mutex
	open  bool
}

// OpenAdapter opens the CEC device node at path
func OpenAdapter(path string) (Hardware, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, path, err)
	}
	return &LinuxAdapter{path: path, fd: fd, open: true}, nil
}

func (a *LinuxAdapter) ioctl(req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(a.fd), req, uintptr(arg))
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return errno
		}
		return nil
	}
}

// Configure claims a single logical address of the requested type
func (a *LinuxAdapter) Configure(cfg AdapterConfig) (Handle, error) {
	var caps cecCaps
	if err := a.ioctl(cecAdapGCaps, unsafe.Pointer(&caps)); err != nil {
		return Handle{}, fmt.Errorf("%w: query capabilities: %v", ErrUnavailable, err)
	}

	mode := uint32(modeInitiator | modeFollower)
	if err := a.ioctl(cecSMode, unsafe.Pointer(&mode)); err != nil {
		return Handle{}, fmt.Errorf("%w: set mode: %v", ErrUnavailable, err)
	}

	if caps.Capabilities&capLogAddrs != 0 {
		// clear whatever was claimed before, then claim ours
		var clear cecLogAddrs
		if err := a.ioctl(cecAdapSLogAddrs, unsafe.Pointer(&clear)); err != nil {
			return Handle{}, fmt.Errorf("%w: clear logical addresses: %v", ErrUnavailable, err)
		}

		la := cecLogAddrs{
			NumLogAddrs: 1,
			CECVersion:  cecVersion14,
			VendorID:    cfg.VendorID,
		}
		copy(la.OSDName[:14], cfg.OSDName)
		if cfg.DeviceType == DeviceTypePlayback {
			la.LogAddrType[0] = logAddrTypePlayback
			la.PrimaryDeviceType[0] = primDevTypePlayback
			la.AllDeviceTypes[0] = allDevTypePlayback
		} else {
			la.LogAddrType[0] = logAddrTypeRecord
			la.PrimaryDeviceType[0] = primDevTypeRecord
			la.AllDeviceTypes[0] = allDevTypeRecord
		}
		if err := a.ioctl(cecAdapSLogAddrs, unsafe.Pointer(&la)); err != nil {
			return Handle{}, fmt.Errorf("%w: claim logical address: %v", ErrUnavailable, err)
		}
	}

	var la cecLogAddrs
	if err := a.ioctl(cecAdapGLogAddrs, unsafe.Pointer(&la)); err != nil {
		return Handle{}, fmt.Errorf("%w: read logical addresses: %v", ErrUnavailable, err)
	}
	var pa uint16
	if err := a.ioctl(cecAdapGPhysAddr, unsafe.Pointer(&pa)); err != nil {
		return Handle{}, fmt.Errorf("%w: read physical address: %v", ErrUnavailable, err)
	}

	h := Handle{LogicalAddress: AddressBroadcast, PhysicalAddress: pa}
	if la.NumLogAddrs > 0 && la.LogAddr[0] != logAddrInvalid {
		h.LogicalAddress = LogicalAddress(la.LogAddr[0] & 0xF)
	}
	return h, nil
}

// Transmit sends raw and blocks until the kernel reports the outcome
func (a *LinuxAdapter) Transmit(raw []byte) error {
	if len(raw) == 0 || len(raw) > 16 {
		return ErrInvalidFrame
	}
	msg := cecMsg{Len: uint32(len(raw))}
	copy(msg.Msg[:], raw)

	if err := a.ioctl(cecTransmit, unsafe.Pointer(&msg)); err != nil {
		switch {
		case errors.Is(err, unix.EBUSY):
			return ErrBusy
		case errors.Is(err, unix.ENONET), errors.Is(err, unix.EBADF):
			return fmt.Errorf("%w: %v", ErrHardwareFault, err)
		default:
			return fmt.Errorf("%w: transmit: %v", ErrHardwareFault, err)
		}
	}

	s := msg.TxStatus
	switch {
	case s&txStatusOK != 0:
		return nil
	case s&txStatusNack != 0:
		return ErrNotAcknowledged
	case s&txStatusArbLost != 0:
		return ErrBusy
	case s&(txStatusLowDrive|txStatusError|txStatusMaxRetries) != 0:
		return fmt.Errorf("%w: tx status 0x%02x", ErrHardwareFault, s)
	default:
		return fmt.Errorf("%w: unknown tx status 0x%02x", ErrHardwareFault, s)
	}
}

// Receive waits up to timeout for one frame
func (a *LinuxAdapter) Receive(timeout time.Duration) ([]byte, error) {
	a.mutex.Lock()
	open := a.open
	a.mutex.Unlock()
	if !open {
		return nil, ErrClosed
	}

	msg := cecMsg{Timeout: uint32(timeout / time.Millisecond)}
	if err := a.ioctl(cecReceive, unsafe.Pointer(&msg)); err != nil {
		switch {
		case errors.Is(err, unix.ETIMEDOUT):
			return nil, ErrReceiveTimeout
		case errors.Is(err, unix.EBADF):
			return nil, ErrClosed
		default:
			return nil, fmt.Errorf("%w: receive: %v", ErrHardwareFault, err)
		}
	}
	if msg.Len == 0 || msg.Len > 16 {
		return nil, fmt.Errorf("%w: receive length %d", ErrHardwareFault, msg.Len)
	}
	return append([]byte(nil), msg.Msg[:msg.Len]...), nil
}

func (a *LinuxAdapter) Close() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if !a.open {
		return nil
	}
	a.open = false
	return unix.Close(a.fd)
}
