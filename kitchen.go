package netdumplings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
)

var (
	kitchenMeter      = global.Meter("netdumplings/kitchen")
	kitchenInCounter  = metric.Must(kitchenMeter).NewInt64ValueRecorder("packets")
	kitchenOutCounter = metric.Must(kitchenMeter).NewInt64ValueRecorder("dumplings")
	kitchenErrCounter = metric.Must(kitchenMeter).NewInt64ValueRecorder("chef_errors")
)

// KitchenState is the Created→Running→Stopped lifecycle a Kitchen moves
// through. There is no pause/resume.
type KitchenState int

const (
	KitchenCreated KitchenState = iota
	KitchenRunning
	KitchenStopped
)

// KitchenOption configures optional Kitchen behavior.
type KitchenOption struct {
	// OutboundBufferSize bounds the outbound dumpling queue. A full queue
	// causes the newest dumpling to be dropped with a logged warning,
	// rather than blocking the capture thread. Zero defaults to 1024.
	OutboundBufferSize int
	PacketSource       PacketSource
}

func (o *KitchenOption) withDefaults() *KitchenOption {
	out := KitchenOption{}
	if o != nil {
		out = *o
	}
	if out.OutboundBufferSize <= 0 {
		out.OutboundBufferSize = 1024
	}
	if out.PacketSource == nil {
		out.PacketSource = &GopacketSource{}
	}
	return &out
}

// Kitchen runs a packet sniffer, dispatches every captured packet and every
// interval poke to its registered chefs in registration order, and converts
// non-empty chef outputs into encoded dumplings on an outbound queue.
type Kitchen struct {
	Name          string
	Interface     string
	Filter        string
	PokeInterval  time.Duration // zero disables the interval poker

	option *KitchenOption
	logger logger

	mu    sync.Mutex // serializes chef invocation
	chefs []Chef

	outbound chan []byte

	stateMu sync.Mutex
	state   KitchenState
}

// NewKitchen constructs a Kitchen. pokeInterval of zero disables the
// interval-poke worker, matching the source's `chef_poke_interval=None`.
func NewKitchen(name, iface, filter string, pokeInterval time.Duration, opt *KitchenOption) *Kitchen {
	o := opt.withDefaults()
	return &Kitchen{
		Name:         name,
		Interface:    iface,
		Filter:       filter,
		PokeInterval: pokeInterval,
		option:       o,
		logger:       defaultLogger,
		outbound:     make(chan []byte, o.OutboundBufferSize),
	}
}

// RegisterChef adds a chef to the dispatch list. Order of registration is
// the order of dispatch per packet and per interval poke.
func (k *Kitchen) RegisterChef(c Chef) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.chefs = append(k.chefs, c)
}

// Outbound returns the channel of encoded dumpling frames the Kitchen
// produces. An Uplink drains this channel to forward frames to the Hub.
func (k *Kitchen) Outbound() <-chan []byte {
	return k.outbound
}

// Run starts packet capture and (if PokeInterval > 0) the interval poker.
// It blocks until ctx is cancelled or the packet source returns.
func (k *Kitchen) Run(ctx context.Context) error {
	k.setState(KitchenRunning)
	defer k.setState(KitchenStopped)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	if k.PokeInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.pokeLoop(ctx)
		}()
	} else {
		k.logger.Infof("%s: interval poker disabled", k.Name)
	}

	k.logger.Infof("%s: starting sniffer on interface %q filter %q", k.Name, k.Interface, k.Filter)

	err := k.option.PacketSource.Sniff(ctx, k.Interface, k.Filter, k.handlePacket)

	cancel()
	wg.Wait()
	return err
}

func (k *Kitchen) handlePacket(p Packet) {
	kitchenInCounter.Record(context.Background(), 1, attribute.String("kitchen", k.Name))

	k.mu.Lock()
	chefs := make([]Chef, len(k.chefs))
	copy(chefs, k.chefs)
	k.mu.Unlock()

	for _, chef := range chefs {
		payload, ok := k.invokePacketHandler(chef, p)
		if !ok {
			continue
		}
		k.emit(chef.Name(), DriverPacket, payload)
	}
}

func (k *Kitchen) invokePacketHandler(chef Chef, p Packet) (payload interface{}, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			k.logChefError(chef.Name(), fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()

	return chef.OnPacket(p)
}

func (k *Kitchen) pokeLoop(ctx context.Context) {
	ticker := time.NewTicker(k.PokeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.pokeChefs()
		}
	}
}

func (k *Kitchen) pokeChefs() {
	k.logger.Debugf("%s: poking chefs", k.Name)

	k.mu.Lock()
	chefs := make([]Chef, len(k.chefs))
	copy(chefs, k.chefs)
	k.mu.Unlock()

	for _, chef := range chefs {
		payload, ok := k.invokeIntervalHandler(chef)
		if !ok {
			continue
		}
		k.emit(chef.Name(), DriverInterval, payload)
	}
}

func (k *Kitchen) invokeIntervalHandler(chef Chef) (payload interface{}, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			k.logChefError(chef.Name(), fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()

	return chef.OnInterval(k.PokeInterval)
}

func (k *Kitchen) logChefError(chefName string, err error) {
	kitchenErrCounter.Record(context.Background(), 1, attribute.String("kitchen", k.Name), attribute.String("chef", chefName))
	k.logger.Errorf("%s: error invoking chef %s: %s", k.Name, chefName, newChefError(chefName, err))
}

func (k *Kitchen) emit(chefName string, driver Driver, payload interface{}) {
	kitchenName := k.Name
	d := NewDumpling(chefName, &kitchenName, driver, payload)

	encoded, err := d.Encode()
	if err != nil {
		k.logger.Errorf("%s: dropping dumpling from %s: %s", k.Name, chefName, err)
		return
	}

	select {
	case k.outbound <- encoded:
		kitchenOutCounter.Record(context.Background(), 1, attribute.String("kitchen", k.Name), attribute.String("chef", chefName))
	default:
		k.logger.Warnf("%s: outbound queue full; dropping dumpling from %s", k.Name, chefName)
	}
}

func (k *Kitchen) setState(s KitchenState) {
	k.stateMu.Lock()
	defer k.stateMu.Unlock()
	k.state = s
}

// State returns the Kitchen's current lifecycle state.
func (k *Kitchen) State() KitchenState {
	k.stateMu.Lock()
	defer k.stateMu.Unlock()
	return k.state
}

// IdentityFrame describes this kitchen for the kitchen-identity handshake
// frame an Uplink sends when it first connects to the Hub.
func (k *Kitchen) IdentityFrame() *KitchenIdentity {
	k.mu.Lock()
	defer k.mu.Unlock()

	names := make([]string, len(k.chefs))
	for i, c := range k.chefs {
		names[i] = c.Name()
	}

	return &KitchenIdentity{
		KitchenName:  k.Name,
		Interface:    k.Interface,
		Filter:       k.Filter,
		Chefs:        names,
		PokeInterval: k.PokeInterval.Seconds(),
	}
}
