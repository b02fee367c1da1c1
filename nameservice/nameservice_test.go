/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package nameservice_test

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/NVIDIA/zvmd/nameservice"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type bindEntry struct {
	id   uint32
	port uint16
}

func encodeRegistration(peerID uint32, binds []bindEntry, connects []uint32) []byte {
	buf := make([]byte, 12+6*len(binds)+6*len(connects))
	binary.BigEndian.PutUint32(buf[0:4], peerID)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(binds)))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(connects)))
	off := 12
	for _, b := range binds {
		binary.BigEndian.PutUint32(buf[off:off+4], b.id)
		binary.BigEndian.PutUint16(buf[off+4:off+6], b.port)
		off += 6
	}
	for _, c := range connects {
		binary.BigEndian.PutUint32(buf[off:off+4], c)
		off += 6
	}
	return buf
}

func decodeReply(msg []byte, bindCount int, connects []uint32) (ips []net.IP, ports []uint16) {
	off := 12 + 6*bindCount
	for range connects {
		ips = append(ips, net.IP(msg[off:off+4]))
		ports = append(ports, binary.BigEndian.Uint16(msg[off+4:off+6]))
		off += 6
	}
	return ips, ports
}

var _ = Describe("Service", func() {
	It("resolves a same-host peer pair to loopback and the declared bind port", func() {
		svc, err := nameservice.Start("127.0.0.1", 2)
		Expect(err).NotTo(HaveOccurred())
		defer svc.Stop()

		addr, err := net.ResolveUDPAddr("udp", svc.Addr())
		Expect(err).NotTo(HaveOccurred())

		c1, err := net.DialUDP("udp", nil, addr)
		Expect(err).NotTo(HaveOccurred())
		defer c1.Close()
		c2, err := net.DialUDP("udp", nil, addr)
		Expect(err).NotTo(HaveOccurred())
		defer c2.Close()

		// peer 1 listens for peer 2 on :5000, wants to connect to peer 2.
		_, err = c1.Write(encodeRegistration(1, []bindEntry{{id: 2, port: 5000}}, []uint32{2}))
		Expect(err).NotTo(HaveOccurred())
		// peer 2 listens for peer 1 on :6000, wants to connect to peer 1.
		_, err = c2.Write(encodeRegistration(2, []bindEntry{{id: 1, port: 6000}}, []uint32{1}))
		Expect(err).NotTo(HaveOccurred())

		buf := make([]byte, 1024)
		c1.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := c1.Read(buf)
		Expect(err).NotTo(HaveOccurred())
		ips, ports := decodeReply(buf[:n], 1, []uint32{2})
		Expect(ports[0]).To(Equal(uint16(6000)))
		Expect(ips[0].String()).To(Equal("127.0.0.1"))

		buf2 := make([]byte, 1024)
		c2.SetReadDeadline(time.Now().Add(2 * time.Second))
		n2, err := c2.Read(buf2)
		Expect(err).NotTo(HaveOccurred())
		ips2, ports2 := decodeReply(buf2[:n2], 1, []uint32{1})
		Expect(ports2[0]).To(Equal(uint16(5000)))
		Expect(ips2[0].String()).To(Equal("127.0.0.1"))
	})
})
