// Package nameservice implements the UDP rendezvous that lets a job's
// workers discover each other's dialing address. The wire format is fixed
// by the sandbox runtime's network bootstrap and must not change.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package nameservice

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/NVIDIA/zvmd/cmn/nlog"
)

const (
	intSize           = 4
	inputRecordSize   = 6 // connecting_peer_id:u32, port:u16
	outputRecordSize  = 6 // ipv4:4bytes, port:u16
	headerSize        = 3 * intSize
	maxDatagramLength = 65535
)

type pendingPeer struct {
	msg        []byte
	offset     int
	connectIDs []uint32
}

// Service is one job's rendezvous: constructed with the number of distinct
// peers it expects to hear from, torn down by Stop once the job completes.
type Service struct {
	conn     *net.UDPConn
	peers    int
	bindMap  map[uint32]map[uint32]uint16
	pending  map[uint32]pendingPeer
	peerAddr map[uint32]*net.UDPAddr
	stopOnce sync.Once
}

// New constructs a Service for a job expecting registrations from peers
// distinct peers; replies go out once all of them have checked in.
func New(peers int) *Service {
	return &Service{
		peers:    peers,
		bindMap:  make(map[uint32]map[uint32]uint16, peers),
		pending:  make(map[uint32]pendingPeer, peers),
		peerAddr: make(map[uint32]*net.UDPAddr, peers),
	}
}

// Start binds an ephemeral UDP port on host and begins the single reader
// goroutine.
func Start(host string, peers int) (*Service, error) {
	s := New(peers)
	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: 0}
	if addr.IP == nil {
		addr.IP = net.IPv4zero
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	go s.run()
	return s, nil
}

// Addr returns the service's listening address, e.g. "10.0.0.1:45231".
func (s *Service) Addr() string { return s.conn.LocalAddr().String() }

// Port returns just the listening port.
func (s *Service) Port() int { return s.conn.LocalAddr().(*net.UDPAddr).Port }

// Stop tears down the listener; in-flight replies are best-effort.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.conn.Close()
	})
}

func (s *Service) run() {
	buf := make([]byte, maxDatagramLength)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed by Stop()
		}
		msg := make([]byte, n)
		copy(msg, buf[:n])
		s.handle(msg, addr)
	}
}

// handle parses one registration datagram, records it, and - once every
// expected peer has checked in - resolves and sends every peer's reply.
// Single-shot: a repeat registration from the same peer overwrites its
// prior entry.
func (s *Service) handle(msg []byte, addr *net.UDPAddr) {
	if len(msg) < headerSize {
		nlog.Warningf("nameservice: short datagram (%d bytes) from %s", len(msg), addr)
		return
	}
	peerID := binary.BigEndian.Uint32(msg[0:4])
	bindCount := binary.BigEndian.Uint32(msg[4:8])
	connectCount := binary.BigEndian.Uint32(msg[8:12])

	offset := headerSize
	binds := make(map[uint32]uint16, bindCount)
	for i := uint32(0); i < bindCount; i++ {
		if offset+inputRecordSize > len(msg) {
			nlog.Warningf("nameservice: truncated bind record from peer %d", peerID)
			return
		}
		connectingID := binary.BigEndian.Uint32(msg[offset : offset+4])
		port := binary.BigEndian.Uint16(msg[offset+4 : offset+6])
		binds[connectingID] = port
		offset += inputRecordSize
	}
	s.bindMap[peerID] = binds

	connectOffset := offset
	connectIDs := make([]uint32, 0, connectCount)
	co := offset
	for i := uint32(0); i < connectCount; i++ {
		if co+intSize > len(msg) {
			nlog.Warningf("nameservice: truncated connect record from peer %d", peerID)
			return
		}
		connectIDs = append(connectIDs, binary.BigEndian.Uint32(msg[co:co+4]))
		co += outputRecordSize
	}

	s.pending[peerID] = pendingPeer{msg: msg, offset: connectOffset, connectIDs: connectIDs}
	s.peerAddr[peerID] = addr

	if len(s.peerAddr) < s.peers {
		return
	}
	s.replyAll()
}

func (s *Service) replyAll() {
	for peerID, pp := range s.pending {
		reply := pp.msg
		off := pp.offset
		for _, connectingID := range pp.connectIDs {
			port := s.bindMap[connectingID][peerID]
			ip := s.resolveIP(connectingID, peerID)
			copy(reply[off:off+4], ip)
			binary.BigEndian.PutUint16(reply[off+4:off+6], port)
			off += outputRecordSize
		}
		if _, err := s.conn.WriteToUDP(reply, s.peerAddr[peerID]); err != nil {
			nlog.Warningf("nameservice: reply to peer %d failed: %v", peerID, err)
		}
	}
}

// resolveIP returns the dialing address for connectingID as seen by
// peerID: its own registered source IP, collapsed to loopback when both
// peers share a host.
func (s *Service) resolveIP(connectingID, peerID uint32) net.IP {
	target := s.peerAddr[connectingID]
	if target == nil {
		return net.IPv4zero.To4()
	}
	ip := target.IP.To4()
	if ip == nil {
		ip = make(net.IP, 4)
	}
	if self := s.peerAddr[peerID]; self != nil && target.IP.Equal(self.IP) {
		return net.IPv4(127, 0, 0, 1).To4()
	}
	return ip
}
