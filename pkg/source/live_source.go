package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haolipeng/gopacket"
	"github.com/haolipeng/gopacket/layers"
	"github.com/haolipeng/gopacket/pcap"
	"github.com/sirupsen/logrus"

	"github.com/cesnet/ipspoof-detector/pkg/config"
	"github.com/cesnet/ipspoof-detector/pkg/ipaddr"
	"github.com/cesnet/ipspoof-detector/pkg/metrics"
	"github.com/cesnet/ipspoof-detector/pkg/types"
)

// LiveSource captures packets off a live interface and synthesizes one
// FlowRecord per observed packet. It does not aggregate packets into
// flows itself — that is an upstream exporter's job in the system this was
// adapted from; here each captured packet stands in for a single-packet
// flow observation.
//
// A single-interface capture has no notion of which direction a packet
// crossed relative to the network being protected (that information is
// carried by a real flow exporter's direction bit, per spec.md §3, which
// is produced upstream of this detector and is out of scope to re-derive
// from raw packets here). packetToRecord therefore always emits
// Direction == types.Outgoing, which means records observed by a live
// source never exercise the bogon filter's specific-prefix check
// (pkg/bogon/filter.go) or the symmetric filter's incoming-validation
// branch (pkg/symmetric/table.go) — both require Incoming. Start logs a
// warning once to make this limitation visible; operators who need those
// checks exercised should feed the detector from a real flow exporter
// (the replay or channel source types) instead of live capture.
type LiveSource struct {
	handle    *pcap.Handle
	output    chan *types.FlowRecord
	bpfFilter string
	stats     *metrics.SourceMetrics
}

// NewLiveSource opens the configured interface for live capture.
func NewLiveSource(cfg *config.Config) (*LiveSource, error) {
	if cfg.Source.Interface == "" {
		return nil, fmt.Errorf("live source: interface name is required")
	}

	handle, err := pcap.OpenLive(
		cfg.Source.Interface,
		cfg.Source.SnapLen,
		cfg.Source.Promiscuous,
		cfg.Source.Timeout,
	)
	if err != nil {
		return nil, fmt.Errorf("live source: open interface %s: %w", cfg.Source.Interface, err)
	}

	return &LiveSource{
		handle:    handle,
		output:    make(chan *types.FlowRecord, cfg.Pipeline.BufferSize),
		bpfFilter: cfg.Source.BPFFilter,
		stats:     &metrics.SourceMetrics{},
	}, nil
}

func (s *LiveSource) Output() <-chan *types.FlowRecord { return s.output }

func (s *LiveSource) SetFilter(filter string) error {
	s.bpfFilter = filter
	if s.handle != nil && filter != "" {
		return s.handle.SetBPFFilter(filter)
	}
	return nil
}

func (s *LiveSource) Start(ctx context.Context, wg *sync.WaitGroup) error {
	logrus.Warn("live source: packets captured off a single interface carry no flow-direction " +
		"bit; all records are emitted as Direction=Outgoing, so the bogon filter's specific-prefix " +
		"check and the symmetric filter's incoming-validation branch will not fire for this source")

	if s.bpfFilter != "" {
		logrus.Debugf("live source: setting BPF filter: %s", s.bpfFilter)
		if err := s.handle.SetBPFFilter(s.bpfFilter); err != nil {
			return fmt.Errorf("live source: set BPF filter: %w", err)
		}
	}

	packetSource := gopacket.NewPacketSource(s.handle, s.handle.LinkType())
	logrus.Infof("live source: capturing with link type %v", s.handle.LinkType())

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(s.output)
		defer s.handle.Close()

		for {
			select {
			case <-ctx.Done():
				logrus.Info("live source: stopping capture due to context cancellation")
				return
			default:
				packet, err := packetSource.NextPacket()
				if err != nil {
					s.stats.IncrementErrorCount()
					logrus.Warnf("live source: error capturing packet: %v", err)
					continue
				}

				rec, ok := packetToRecord(packet)
				if !ok {
					continue
				}
				s.stats.IncrementPacketsCaptured()
				s.stats.AddBytesProcessed(rec.ByteCount)

				select {
				case s.output <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return nil
}

// packetToRecord extracts the fields the detection filters need from one
// captured packet. Packets without a recognizable IPv4/IPv6 layer are
// dropped. Direction is left at its zero value, types.Outgoing — see the
// LiveSource doc comment for why.
func packetToRecord(packet gopacket.Packet) (*types.FlowRecord, bool) {
	now := types.NewTimestamp(time.Now())

	if ip4 := packet.Layer(layers.LayerTypeIPv4); ip4 != nil {
		v4, _ := ip4.(*layers.IPv4)
		src, err := ipaddr.FromNetIP(v4.SrcIP)
		if err != nil {
			return nil, false
		}
		dst, err := ipaddr.FromNetIP(v4.DstIP)
		if err != nil {
			return nil, false
		}
		rec := &types.FlowRecord{
			Src: src, Dst: dst,
			Protocol:    uint8(v4.Protocol),
			FirstTime:   now,
			LastTime:    now,
			PacketCount: 1,
			ByteCount:   uint64(len(packet.Data())),
		}
		fillPorts(packet, rec)
		return rec, true
	}

	if ip6 := packet.Layer(layers.LayerTypeIPv6); ip6 != nil {
		v6, _ := ip6.(*layers.IPv6)
		src, err := ipaddr.FromNetIP(v6.SrcIP)
		if err != nil {
			return nil, false
		}
		dst, err := ipaddr.FromNetIP(v6.DstIP)
		if err != nil {
			return nil, false
		}
		rec := &types.FlowRecord{
			Src: src, Dst: dst,
			Protocol:    uint8(v6.NextHeader),
			FirstTime:   now,
			LastTime:    now,
			PacketCount: 1,
			ByteCount:   uint64(len(packet.Data())),
		}
		fillPorts(packet, rec)
		return rec, true
	}

	return nil, false
}

func fillPorts(packet gopacket.Packet, rec *types.FlowRecord) {
	if tcp := packet.Layer(layers.LayerTypeTCP); tcp != nil {
		t, _ := tcp.(*layers.TCP)
		rec.SrcPort = uint16(t.SrcPort)
		rec.DstPort = uint16(t.DstPort)
		rec.TCPFlags = tcpFlagsByte(t)
		return
	}
	if udp := packet.Layer(layers.LayerTypeUDP); udp != nil {
		u, _ := udp.(*layers.UDP)
		rec.SrcPort = uint16(u.SrcPort)
		rec.DstPort = uint16(u.DstPort)
	}
}

func tcpFlagsByte(t *layers.TCP) uint8 {
	var flags uint8
	if t.FIN {
		flags |= 0x01
	}
	if t.SYN {
		flags |= 0x02
	}
	if t.RST {
		flags |= 0x04
	}
	if t.PSH {
		flags |= 0x08
	}
	if t.ACK {
		flags |= 0x10
	}
	if t.URG {
		flags |= 0x20
	}
	return flags
}
