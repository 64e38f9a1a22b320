package rip2

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"
)

// maxDatagramSize is the receive buffer for a single RIP2 datagram. The
// sonar keeps packets under typical UDP limits; 64 KiB covers any legal
// datagram.
const maxDatagramSize = 65535

// UDPListener receives RIP2 datagrams from a multicast group and hands
// decoded range images to a handler. Per-packet decode failures are
// counted and logged, never propagated.
type UDPListener struct {
	addr        string
	rcvBuf      int
	logInterval time.Duration
	buffer      []byte
	stats       *PacketStats
	decoder     *Decoder
	handler     func(*RangeImage)

	schemaDown bool // suppresses repeated schema-unavailable log lines
}

// UDPListenerConfig configures a UDPListener.
type UDPListenerConfig struct {
	// Addr is the multicast group and port, e.g. "224.0.0.96:4747".
	Addr        string
	RcvBuf      int
	LogInterval time.Duration
	Stats       *PacketStats
	Decoder     *Decoder
	// Handler receives each decoded range image. It must not block for
	// long; the listener calls it inline on the receive goroutine.
	Handler func(*RangeImage)
}

// NewUDPListener creates a listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	logInterval := config.LogInterval
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &UDPListener{
		addr:        config.Addr,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		buffer:      make([]byte, maxDatagramSize),
		stats:       config.Stats,
		decoder:     config.Decoder,
		handler:     config.Handler,
	}
}

// Start joins the multicast group and receives packets until the context
// is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	var conn *net.UDPConn
	if addr.IP != nil && addr.IP.IsMulticast() {
		conn, err = net.ListenMulticastUDP("udp", nil, addr)
	} else {
		conn, err = net.ListenUDP("udp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("Warning: failed to set UDP receive buffer to %d bytes: %v", l.rcvBuf, err)
		}
	}

	log.Printf("Listening for sonar packets on %s", l.addr)
	go l.startStatsLogging(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Sonar listener shutting down")
			return ctx.Err()
		default:
			// Read deadline so context cancellation is noticed promptly.
			if err := conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
				log.Printf("Error setting read deadline: %v", err)
				continue
			}
			n, _, err := conn.ReadFromUDP(l.buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				log.Printf("Error reading UDP packet: %v", err)
				continue
			}
			l.handlePacket(l.buffer[:n])
		}
	}
}

// handlePacket decodes one datagram. Packet loss is expected; every
// failure is a dropped packet, nothing more.
func (l *UDPListener) handlePacket(pkt []byte) {
	if l.stats != nil {
		l.stats.AddPacket(len(pkt))
	}
	ri, err := l.decoder.Decode(pkt)
	if err != nil {
		if l.stats != nil {
			l.stats.AddDropped()
		}
		if kind, ok := DecodeKindOf(err); ok && kind == KindSchemaUnavailable {
			if !l.schemaDown {
				l.schemaDown = true
				log.Printf("Sonar decoding disabled: %v", err)
			}
			return
		}
		log.Printf("Sonar packet dropped: %v", err)
		return
	}
	if l.schemaDown {
		l.schemaDown = false
		log.Printf("Sonar schema available; decoding resumed")
	}
	if l.handler != nil {
		l.handler(ri)
	}
}

func (l *UDPListener) startStatsLogging(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if l.stats != nil {
				l.stats.LogStats()
			}
		}
	}
}
