package source

import (
	"net"
	"testing"

	"github.com/haolipeng/gopacket"
	"github.com/haolipeng/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesnet/ipspoof-detector/pkg/types"
)

func buildIPv4TCPPacket(t *testing.T) gopacket.Packet {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{5, 4, 3, 2, 1, 0},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		SrcIP:    net.ParseIP("198.51.100.1").To4(),
		DstIP:    net.ParseIP("203.0.113.1").To4(),
		Protocol: layers.IPProtocolTCP,
	}
	tcp := &layers.TCP{
		SrcPort: 443,
		DstPort: 51000,
		SYN:     true,
		ACK:     true,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp))
	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

func TestPacketToRecordExtractsIPv4TCPFields(t *testing.T) {
	packet := buildIPv4TCPPacket(t)

	rec, ok := packetToRecord(packet)
	require.True(t, ok)
	assert.Equal(t, uint16(443), rec.SrcPort)
	assert.Equal(t, uint16(51000), rec.DstPort)
	assert.Equal(t, uint8(layers.IPProtocolTCP), rec.Protocol)
	assert.Equal(t, uint64(1), rec.PacketCount)
	assert.NotZero(t, rec.TCPFlags)

	// A single-interface capture has no flow-direction bit to recover, so
	// every live-captured record is emitted as Outgoing (see the LiveSource
	// doc comment) — this is the behavior the bogon/symmetric filters'
	// Incoming-only branches depend on being aware of.
	assert.Equal(t, types.Outgoing, rec.Direction)
}

func TestPacketToRecordDropsNonIPPacket(t *testing.T) {
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{5, 4, 3, 2, 1, 0},
		EthernetType: layers.EthernetTypeLLC,
	}))
	packet := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)

	_, ok := packetToRecord(packet)
	assert.False(t, ok)
}
