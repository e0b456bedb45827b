// Command exerciser drives a core.Core over a Unix domain socket: a
// minimal host-model harness for wiring the behavioral PCIe Exerciser
// endpoint into an external RC/IOMMU simulator, not exercised by any
// package test.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/arm-bsa/pcie-exerciser/core"
	"github.com/arm-bsa/pcie-exerciser/internal/config"
	"github.com/arm-bsa/pcie-exerciser/internal/transport"
)

func main() {
	sockPath := flag.String("socket", "/tmp/pcie-exerciser.sock", "Unix domain socket the host model connects to")
	bufSize := flag.Int("dma-buffer", 0, "DMA buffer size in bytes (0 = default)")
	atsEnabled := flag.Bool("ats", true, "enable ATS translation requests")
	endpointID := flag.Uint("endpoint-id", 0, "requester id (Bus/Dev/Func) used as req_id")
	mps := flag.Uint("mps", 256, "max_payload_size in bytes")
	mrrs := flag.Uint("mrrs", 512, "max_read_request_size in bytes")
	flag.Parse()

	cfg := config.NewDefault()
	cfg.ATSEnabledVal = *atsEnabled
	cfg.EndpointIDVal = uint16(*endpointID)
	cfg.MPS = uint16(*mps)
	cfg.MRRS = uint16(*mrrs)

	c := core.New(cfg, *bufSize)

	link, err := transport.Listen(*sockPath)
	if err != nil {
		log.Fatalf("exerciser: %v", err)
	}
	defer link.Close()

	log.Printf("exerciser: listening on %s, waiting for host model...", *sockPath)
	if err := link.Accept(); err != nil {
		log.Fatalf("exerciser: %v", err)
	}
	log.Printf("exerciser: host model connected")

	go pumpInbound(link, c)
	runTickLoop(link, c)
}

// pumpInbound decodes inbound frames and feeds them into the core; it
// never blocks the tick loop, since the core's Submit* calls are all
// non-blocking mutations of in-memory state.
func pumpInbound(link *transport.SocketLink, c *core.Core) {
	for {
		payload, err := link.ReadFrame()
		if err != nil {
			log.Printf("exerciser: inbound link closed: %v", err)
			return
		}
		kind, err := transport.PayloadKind(payload)
		if err != nil {
			log.Printf("exerciser: %v", err)
			continue
		}
		switch kind {
		case 0x01:
			beat, err := transport.DecodeRequest(payload)
			if err != nil {
				log.Printf("exerciser: %v", err)
				continue
			}
			c.SubmitRX(beat)
		case 0x02:
			cpl, err := transport.DecodeCompletion(payload)
			if err != nil {
				log.Printf("exerciser: %v", err)
				continue
			}
			c.SubmitCompletion(cpl)
		default:
			log.Printf("exerciser: unknown frame kind 0x%02x", kind)
		}
	}
}

// runTickLoop advances the core once per tick, draining whatever lands on
// its two outbound streams back onto the socket.
func runTickLoop(link *transport.SocketLink, c *core.Core) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		c.Tick()

		for {
			beat, ok := c.PopTX()
			if !ok {
				break
			}
			if err := link.WriteFrame(transport.EncodeRequest(beat)); err != nil {
				log.Printf("exerciser: write request beat: %v", err)
				return
			}
		}
		for {
			cpl, ok := c.PopCompletionTX()
			if !ok {
				break
			}
			if err := link.WriteFrame(transport.EncodeCompletion(cpl)); err != nil {
				log.Printf("exerciser: write completion beat: %v", err)
				return
			}
		}
	}
}
