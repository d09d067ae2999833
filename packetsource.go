package netdumplings

import (
	"context"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// Packet is the unit of work a Chef's OnPacket handler receives. It wraps
// gopacket.Packet so chefs get full layer access while the Kitchen stays
// agnostic to the capture backend.
type Packet struct {
	gopacket.Packet
}

// Summary returns a short human-readable description of the packet,
// mirroring scapy's packet.summary() used by the source's default chef
// packet handler.
func (p Packet) Summary() string {
	if p.Packet == nil {
		return "<nil packet>"
	}
	return p.Packet.String()
}

// LayerNames returns the name of every layer present in the packet, in
// encapsulation order (outermost first), used by chefs such as
// PacketCountChef that tally packets per protocol layer.
func (p Packet) LayerNames() []string {
	if p.Packet == nil {
		return nil
	}

	names := make([]string, 0, len(p.Packet.Layers()))
	for _, layer := range p.Packet.Layers() {
		names = append(names, layer.LayerType().String())
	}
	return names
}

// PacketSource is the seam between the Kitchen and whatever captures raw
// packets, keeping the capture library itself swappable for testing.
type PacketSource interface {
	// Sniff blocks, invoking handle for each captured packet, until ctx is
	// done or an unrecoverable capture error occurs. iface == "all" means
	// do not restrict capture to a single interface.
	Sniff(ctx context.Context, iface, filter string, handle func(Packet)) error
}

// GopacketSource is the default PacketSource, backed by
// github.com/google/gopacket and its libpcap bindings.
type GopacketSource struct {
	// SnapLen bounds how much of each packet is captured. Zero defaults to
	// 65535, large enough for any link-layer frame.
	SnapLen int32
	// Promiscuous puts the capture interface into promiscuous mode.
	Promiscuous bool
}

// Sniff implements PacketSource. For iface == "all" it captures on the first
// device pcap.FindAllDevs reports only; other interfaces are not captured.
func (g *GopacketSource) Sniff(ctx context.Context, iface, filter string, handle func(Packet)) error {
	snaplen := g.SnapLen
	if snaplen <= 0 {
		snaplen = 65535
	}

	device := iface
	if device == "all" {
		device = ""
	}

	handleSrc, err := openSniffHandle(device, snaplen, g.Promiscuous)
	if err != nil {
		return fmt.Errorf("netdumplings: could not open capture on %q: %w", iface, err)
	}
	defer handleSrc.Close()

	if filter != "" {
		if err := handleSrc.SetBPFFilter(filter); err != nil {
			return fmt.Errorf("netdumplings: invalid BPF filter %q: %w", filter, err)
		}
	}

	src := gopacket.NewPacketSource(handleSrc, handleSrc.LinkType())
	packets := src.Packets()

	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt, ok := <-packets:
			if !ok {
				return nil
			}
			handle(Packet{pkt})
		}
	}
}

// pcapHandle is the subset of *pcap.Handle GopacketSource depends on.
// openSniffHandle always returns a live *pcap.Handle.
type pcapHandle interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
	SetBPFFilter(string) error
	Close()
}

func openSniffHandle(device string, snaplen int32, promisc bool) (pcapHandle, error) {
	if device == "" {
		// No device named: open the first device pcap reports. Capture is
		// on that one interface only; packets on other interfaces are not
		// seen.
		devices, err := pcap.FindAllDevs()
		if err != nil {
			return nil, err
		}
		if len(devices) == 0 {
			return nil, fmt.Errorf("no capture devices found")
		}
		device = devices[0].Name
	}

	return pcap.OpenLive(device, snaplen, promisc, pcap.BlockForever)
}
