package netdumplings

import (
	"context"
	"testing"
	"time"
)

type fakeSource struct {
	packets []Packet
}

func (f *fakeSource) Sniff(ctx context.Context, iface, filter string, handle func(Packet)) error {
	for _, p := range f.packets {
		handle(p)
	}
	<-ctx.Done()
	return nil
}

type countingChef struct {
	BaseChef
	packetCalls int
}

func (c *countingChef) OnPacket(Packet) (interface{}, bool) {
	c.packetCalls++
	return map[string]int{"count": c.packetCalls}, true
}

type panickingChef struct {
	BaseChef
}

func (c *panickingChef) OnPacket(Packet) (interface{}, bool) {
	panic("boom")
}

func Test_Kitchen_DispatchesPacketsToAllChefs(t *testing.T) {
	k := NewKitchen("k1", "all", "", 0, &KitchenOption{
		PacketSource: &fakeSource{packets: []Packet{{}, {}}},
	})

	chef := &countingChef{BaseChef: BaseChef{ChefName: "Counter"}}
	k.RegisterChef(chef)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		k.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for chef.packetCalls < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for packet dispatch")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done

	if chef.packetCalls != 2 {
		t.Errorf("have %d want 2", chef.packetCalls)
	}

	if len(k.Outbound()) != 2 {
		t.Errorf("have %d queued dumplings want 2", len(k.Outbound()))
	}
}

func Test_Kitchen_ChefPanicIsIsolated(t *testing.T) {
	k := NewKitchen("k1", "all", "", 0, &KitchenOption{
		PacketSource: &fakeSource{packets: []Packet{{}}},
	})

	k.RegisterChef(&panickingChef{BaseChef: BaseChef{ChefName: "Panicker"}})

	good := &countingChef{BaseChef: BaseChef{ChefName: "Counter"}}
	k.RegisterChef(good)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		k.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for good.packetCalls < 1 {
		select {
		case <-deadline:
			t.Fatal("panicking chef blocked the rest of the dispatch chain")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done
}

func Test_Kitchen_IntervalPoke(t *testing.T) {
	k := NewKitchen("k1", "all", "", 10*time.Millisecond, &KitchenOption{
		PacketSource: &fakeSource{},
	})

	ic := &intervalChef{BaseChef: BaseChef{ChefName: "Interval"}}
	k.RegisterChef(ic)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		k.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for ic.pokes < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for interval pokes")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done
}

type intervalChef struct {
	BaseChef
	pokes int
}

func (c *intervalChef) OnPacket(Packet) (interface{}, bool) { return nil, false }

func (c *intervalChef) OnInterval(time.Duration) (interface{}, bool) {
	c.pokes++
	return map[string]int{"pokes": c.pokes}, true
}
