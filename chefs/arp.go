package chefs

import (
	"net"
	"sync"
	"time"

	"github.com/google/gopacket/layers"

	"github.com/netdumplings/netdumplings"
)

// ARPChef reports on ARP request/reply activity and flags source IPs it
// hasn't seen before, or whose hardware address just changed.
type ARPChef struct {
	netdumplings.BaseChef

	mu      sync.Mutex
	ipToMAC map[string]string
}

// NewARPChef constructs an ARPChef named id.
func NewARPChef(id string) *ARPChef {
	return &ARPChef{
		BaseChef: netdumplings.BaseChef{ChefName: id},
		ipToMAC:  make(map[string]string),
	}
}

// arpPayload is the wire shape of a single ARP dumpling.
type arpPayload struct {
	Operation string `json:"operation"`
	SrcHW     string `json:"src_hw"`
	SrcIP     string `json:"src_ip"`
	DstHW     string `json:"dst_hw"`
	DstIP     string `json:"dst_ip"`
	Notes     string `json:"notes,omitempty"`
}

// OnPacket emits one dumpling per ARP packet observed.
func (c *ARPChef) OnPacket(p netdumplings.Packet) (interface{}, bool) {
	layer := p.Layer(layers.LayerTypeARP)
	if layer == nil {
		return nil, false
	}
	arp, ok := layer.(*layers.ARP)
	if !ok {
		return nil, false
	}

	var operation string
	switch arp.Operation {
	case layers.ARPRequest:
		operation = "request"
	case layers.ARPReply:
		operation = "reply"
	default:
		operation = "unknown"
	}

	srcIP := net.IP(arp.SourceProtAddress).String()
	srcHW := net.HardwareAddr(arp.SourceHwAddress).String()

	result := arpPayload{
		Operation: operation,
		SrcHW:     srcHW,
		SrcIP:     srcIP,
		DstHW:     net.HardwareAddr(arp.DstHwAddress).String(),
		DstIP:     net.IP(arp.DstProtAddress).String(),
	}

	if arp.Operation == layers.ARPReply {
		c.mu.Lock()
		prior, seen := c.ipToMAC[srcIP]
		switch {
		case !seen:
			result.Notes = "source device is new"
		case prior != srcHW:
			result.Notes = "source device has new IP address"
		}
		c.ipToMAC[srcIP] = srcHW
		c.mu.Unlock()
	}

	return result, true
}

// OnInterval emits no dumpling; ARPChef is purely packet-driven.
func (c *ARPChef) OnInterval(time.Duration) (interface{}, bool) { return nil, false }

func init() {
	netdumplings.RegisterProvider("ARPChef", netdumplings.ProviderFunc(
		func(id string, _ map[string]interface{}) (netdumplings.Chef, error) {
			return NewARPChef(id), nil
		},
	))
}
