package chefs

import (
	"sync"
	"time"

	"github.com/netdumplings/netdumplings"
)

// PacketCountChef tallies how many packets have been seen per protocol
// layer and emits a running total on every interval poke.
type PacketCountChef struct {
	netdumplings.BaseChef

	mu     sync.Mutex
	counts map[string]int
}

// NewPacketCountChef constructs a PacketCountChef named id.
func NewPacketCountChef(id string) *PacketCountChef {
	return &PacketCountChef{
		BaseChef: netdumplings.BaseChef{ChefName: id},
		counts:   make(map[string]int),
	}
}

// OnPacket increments the per-layer counters; it never emits a dumpling
// itself, only interval pokes do.
func (c *PacketCountChef) OnPacket(p netdumplings.Packet) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, name := range p.LayerNames() {
		c.counts[name]++
	}

	return nil, false
}

// OnInterval emits a snapshot of every layer's packet count seen so far.
func (c *PacketCountChef) OnInterval(time.Duration) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		snapshot[k] = v
	}

	return map[string]interface{}{"packet_counts": snapshot}, true
}

func init() {
	netdumplings.RegisterProvider("PacketCountChef", netdumplings.ProviderFunc(
		func(id string, _ map[string]interface{}) (netdumplings.Chef, error) {
			return NewPacketCountChef(id), nil
		},
	))
}
