//go:build pcap
// +build pcap

// Command rip2-replay decodes RIP2 datagrams from a PCAP capture, for
// validating recordings offline and for feeding a captured session back
// into a running service over UDP.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/aquasight/sonarcam/internal/rip2"
)

var (
	pcapFile    = flag.String("pcap", "", "PCAP file to read (required)")
	udpPort     = flag.Int("port", 4747, "UDP port the sonar published on")
	schemaFile  = flag.String("schema", "waterlinked_rip2.pb", "Path to the RIP2 descriptor set")
	forwardAddr = flag.String("forward", "", "Optional UDP address to re-emit packets to")
	realtime    = flag.Bool("realtime", false, "Pace packets by their capture timestamps")
)

func main() {
	flag.Parse()
	if *pcapFile == "" {
		log.Fatal("-pcap is required")
	}

	handle, err := pcap.OpenOffline(*pcapFile)
	if err != nil {
		log.Fatalf("Failed to open PCAP file %s: %v", *pcapFile, err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("udp port %d", *udpPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		log.Fatalf("Failed to set BPF filter %q: %v", filter, err)
	}

	var forwardConn *net.UDPConn
	if *forwardAddr != "" {
		addr, err := net.ResolveUDPAddr("udp", *forwardAddr)
		if err != nil {
			log.Fatalf("Failed to resolve forward address: %v", err)
		}
		forwardConn, err = net.DialUDP("udp", nil, addr)
		if err != nil {
			log.Fatalf("Failed to dial forward address: %v", err)
		}
		defer forwardConn.Close()
		log.Printf("Re-emitting packets to %s", *forwardAddr)
	}

	decoder := rip2.NewDecoder(rip2.NewSchemaProvider(*schemaFile))

	var (
		packets  int
		decoded  int
		dropped  int
		points   int
		lastSeen time.Time
	)
	start := time.Now()

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		packets++

		if *realtime {
			ts := packet.Metadata().Timestamp
			if !lastSeen.IsZero() {
				if gap := ts.Sub(lastSeen); gap > 0 {
					time.Sleep(gap)
				}
			}
			lastSeen = ts
		}

		if forwardConn != nil {
			if _, err := forwardConn.Write(udp.Payload); err != nil {
				log.Printf("Forward write failed: %v", err)
			}
		}

		ri, err := decoder.Decode(udp.Payload)
		if err != nil {
			dropped++
			log.Printf("Packet %d dropped: %v", packets, err)
			continue
		}
		decoded++
		points += ri.SampleCount()
	}

	log.Printf("Replay complete in %v: %d packets, %d decoded, %d dropped, %d range samples",
		time.Since(start).Round(time.Millisecond), packets, decoded, dropped, points)
}
