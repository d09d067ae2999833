package chefs

import (
	"sync"
	"time"

	"github.com/google/gopacket/layers"

	"github.com/netdumplings/netdumplings"
)

// DNSLookupChef reports individual DNS lookups per packet, and a running
// per-hostname lookup count/last-seen time on every interval poke.
type DNSLookupChef struct {
	netdumplings.BaseChef

	mu     sync.Mutex
	lookups map[string]*lookupStats
}

type lookupStats struct {
	Count  int   `json:"count"`
	Latest int64 `json:"latest"`
}

// NewDNSLookupChef constructs a DNSLookupChef named id.
func NewDNSLookupChef(id string) *DNSLookupChef {
	return &DNSLookupChef{
		BaseChef: netdumplings.BaseChef{ChefName: id},
		lookups:  make(map[string]*lookupStats),
	}
}

// OnPacket emits one dumpling per DNS packet that carries a question,
// queries and responses alike.
func (c *DNSLookupChef) OnPacket(p netdumplings.Packet) (interface{}, bool) {
	layer := p.Layer(layers.LayerTypeDNS)
	if layer == nil {
		return nil, false
	}
	dns, ok := layer.(*layers.DNS)
	if !ok || len(dns.Questions) == 0 {
		return nil, false
	}

	hostname := string(dns.Questions[0].Name)
	nowMillis := time.Now().UnixNano() / int64(time.Millisecond)

	c.mu.Lock()
	stats, seen := c.lookups[hostname]
	if !seen {
		stats = &lookupStats{}
		c.lookups[hostname] = stats
	}
	stats.Count++
	stats.Latest = nowMillis
	c.mu.Unlock()

	return map[string]interface{}{
		"lookup": map[string]interface{}{
			"hostname": hostname,
			"when":     nowMillis,
		},
	}, true
}

// OnInterval emits a snapshot of every hostname lookup seen so far.
func (c *DNSLookupChef) OnInterval(time.Duration) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[string]*lookupStats, len(c.lookups))
	for k, v := range c.lookups {
		cp := *v
		snapshot[k] = &cp
	}

	return map[string]interface{}{"lookups_seen": snapshot}, true
}

func init() {
	netdumplings.RegisterProvider("DNSLookupChef", netdumplings.ProviderFunc(
		func(id string, _ map[string]interface{}) (netdumplings.Chef, error) {
			return NewDNSLookupChef(id), nil
		},
	))
}
