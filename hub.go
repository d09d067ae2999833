package netdumplings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
)

var (
	hubMeter          = global.Meter("netdumplings/hub")
	hubInCounter      = metric.Must(hubMeter).NewInt64ValueRecorder("dumplings_received")
	hubOutCounter     = metric.Must(hubMeter).NewInt64ValueRecorder("dumplings_sent")
	hubInvalidCounter = metric.Must(hubMeter).NewInt64ValueRecorder("dumplings_invalid")
	hubDroppedCounter = metric.Must(hubMeter).NewInt64ValueRecorder("dumplings_dropped")
)

// HubOption configures a Hub's addresses, ports and status announcement
// frequency.
type HubOption struct {
	Address    string
	InPort     int
	OutPort    int
	StatusFreq time.Duration
	// EaterQueueSize bounds each eater's outbound queue. When an eater's
	// queue is full (a slow or stalled consumer) the hub drops new frames
	// for that eater with a logged warning rather than letting the queue
	// grow without bound; the eater stays connected.
	EaterQueueSize int
}

func (o *HubOption) withDefaults() *HubOption {
	out := HubOption{}
	if o != nil {
		out = *o
	}
	if out.Address == "" {
		out.Address = DefaultHubHost
	}
	if out.InPort == 0 {
		out.InPort = DefaultHubInPort
	}
	if out.OutPort == 0 {
		out.OutPort = DefaultHubOutPort
	}
	if out.StatusFreq <= 0 {
		out.StatusFreq = DefaultStatusFreq
	}
	if out.EaterQueueSize <= 0 {
		out.EaterQueueSize = 256
	}
	return &out
}

// kitchenRecord is what the Hub retains about a connected Kitchen uplink.
type kitchenRecord struct {
	identity KitchenIdentity
	host     string
}

// eaterRecord is what the Hub retains about a connected Eater, including its
// own outbound queue; every kitchen's ingress goroutine fans a validated
// dumpling out to every eater's queue without blocking on a slow reader.
type eaterRecord struct {
	name  string
	host  string
	queue chan []byte
}

// Hub is the central dumpling broker: an ingress websocket listener that
// kitchens connect to, an egress websocket listener that eaters connect to,
// and a periodic system-status announcer. State is guarded by a single
// mutex that is never held across a channel send.
type Hub struct {
	option *HubOption
	logger logger

	app    *fiber.App
	inApp  *fiber.App
	outApp *fiber.App

	startedAt time.Time

	mu           sync.Mutex
	kitchens     map[*websocket.Conn]*kitchenRecord
	eaters       map[*websocket.Conn]*eaterRecord
	dumplingsIn  int64
	dumplingsOut int64
}

// NewHub constructs a Hub. opt may be nil for all defaults.
func NewHub(opt *HubOption) *Hub {
	h := &Hub{
		option:   opt.withDefaults(),
		logger:   defaultLogger,
		kitchens: make(map[*websocket.Conn]*kitchenRecord),
		eaters:   make(map[*websocket.Conn]*eaterRecord),
	}

	h.inApp = h.newFiberApp()
	h.inApp.Get("/in", h.upgradeMiddleware(), websocket.New(h.handleKitchen))

	h.outApp = h.newFiberApp()
	h.outApp.Get("/out", h.upgradeMiddleware(), websocket.New(h.handleEater))

	return h
}

func (h *Hub) newFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	return app
}

func (h *Hub) upgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("host", c.IP())
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// Run starts both listeners and the status announcer, blocking until ctx is
// cancelled or a listener fails, in which case it returns a
// TransportBindError. On cancellation every connected kitchen and eater is
// sent a CloseCancelled close frame before the listeners shut down.
func (h *Hub) Run(ctx context.Context) error {
	h.startedAt = time.Now()

	errs := make(chan error, 3)

	go func() {
		addr := fmt.Sprintf("%s:%d", h.option.Address, h.option.InPort)
		h.logger.Infof("hub listening for kitchens on %s", addr)
		if err := h.inApp.Listen(addr); err != nil {
			errs <- newBindError(fmt.Sprintf("could not bind ingress listener on %s", addr), err)
		}
	}()

	go func() {
		addr := fmt.Sprintf("%s:%d", h.option.Address, h.option.OutPort)
		h.logger.Infof("hub listening for eaters on %s", addr)
		if err := h.outApp.Listen(addr); err != nil {
			errs <- newBindError(fmt.Sprintf("could not bind egress listener on %s", addr), err)
		}
	}()

	go h.announceStatusLoop(ctx)

	select {
	case <-ctx.Done():
		h.mu.Lock()
		conns := make([]*websocket.Conn, 0, len(h.kitchens)+len(h.eaters))
		for conn := range h.kitchens {
			conns = append(conns, conn)
		}
		for conn := range h.eaters {
			conns = append(conns, conn)
		}
		h.mu.Unlock()
		for _, conn := range conns {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(CloseCancelled, closeCancelledReason),
				time.Now().Add(time.Second))
		}
		_ = h.inApp.Shutdown()
		_ = h.outApp.Shutdown()
		return nil
	case err := <-errs:
		_ = h.inApp.Shutdown()
		_ = h.outApp.Shutdown()
		return err
	}
}

func (h *Hub) handleKitchen(conn *websocket.Conn) {
	host, _ := conn.Locals("host").(string)

	_, identityJSON, err := conn.ReadMessage()
	if err != nil {
		h.logger.Warnf("kitchen at %s disconnected before sending identity: %s", host, err)
		return
	}

	var identity KitchenIdentity
	if err := json.Unmarshal(identityJSON, &identity); err != nil {
		h.logger.Warnf("kitchen at %s sent unreadable identity frame: %s", host, err)
		return
	}

	h.mu.Lock()
	h.kitchens[conn] = &kitchenRecord{identity: identity, host: host}
	h.mu.Unlock()

	h.logger.Infof("kitchen %s connected from %s", identity.KitchenName, host)

	defer func() {
		h.mu.Lock()
		delete(h.kitchens, conn)
		h.mu.Unlock()
		h.logger.Infof("kitchen %s connection closed", identity.KitchenName)
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}

		parsed, err := Validate(frame)
		if err != nil {
			hubInvalidCounter.Record(context.Background(), 1, attribute.String("kitchen", identity.KitchenName))
			h.logger.Errorf("received invalid dumpling from %s: %s", identity.KitchenName, err)
			continue
		}

		h.logger.Debugf("received %s dumpling from %s; %d bytes", ChefNameOf(parsed), identity.KitchenName, len(frame))

		h.mu.Lock()
		h.dumplingsIn++
		h.mu.Unlock()
		hubInCounter.Record(context.Background(), 1, attribute.String("kitchen", identity.KitchenName), attribute.String("chef", ChefNameOf(parsed)))

		h.broadcast(frame)
	}
}

func (h *Hub) handleEater(conn *websocket.Conn) {
	host, _ := conn.Locals("host").(string)

	_, identityJSON, err := conn.ReadMessage()
	if err != nil {
		h.logger.Warnf("eater at %s disconnected before sending identity: %s", host, err)
		return
	}

	var identity EaterIdentity
	_ = json.Unmarshal(identityJSON, &identity)
	if identity.EaterName == "" {
		identity.EaterName = "unnamed"
	}

	rec := &eaterRecord{
		name:  identity.EaterName,
		host:  host,
		queue: make(chan []byte, h.option.EaterQueueSize),
	}

	h.mu.Lock()
	h.eaters[conn] = rec
	h.mu.Unlock()

	h.logger.Infof("eater %s connected from %s", rec.name, host)

	defer func() {
		h.mu.Lock()
		delete(h.eaters, conn)
		h.mu.Unlock()
		h.logger.Infof("eater %s connection closed", rec.name)
	}()

	// The read loop only exists to notice the far end closing the socket;
	// eaters never send anything but their identity frame.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-readDone:
			return
		case frame, ok := <-rec.queue:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			h.mu.Lock()
			h.dumplingsOut++
			h.mu.Unlock()
			hubOutCounter.Record(context.Background(), 1, attribute.String("eater", rec.name))
		}
	}
}

// broadcast fans a validated dumpling frame out to every connected eater's
// queue. A full queue means that eater is falling behind; the frame is
// dropped for that eater rather than blocking every other eater and the
// kitchen's ingress goroutine.
func (h *Hub) broadcast(frame []byte) {
	h.mu.Lock()
	recs := make([]*eaterRecord, 0, len(h.eaters))
	for _, rec := range h.eaters {
		recs = append(recs, rec)
	}
	h.mu.Unlock()

	for _, rec := range recs {
		select {
		case rec.queue <- frame:
		default:
			hubDroppedCounter.Record(context.Background(), 1, attribute.String("eater", rec.name))
			h.logger.Warnf("eater %s queue full; dropping dumpling", rec.name)
		}
	}
}

func (h *Hub) announceStatusLoop(ctx context.Context) {
	ticker := time.NewTicker(h.option.StatusFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.announceStatus()
		}
	}
}

// SystemStatus describes the hub's own state; it is sent to every eater as
// a synthesized dumpling, no chef or kitchen involved.
type SystemStatus struct {
	TotalDumplingsIn  int             `json:"total_dumplings_in"`
	TotalDumplingsOut int             `json:"total_dumplings_out"`
	ServerUptime      float64         `json:"server_uptime"`
	KitchenCount      int             `json:"dumpling_kitchen_count"`
	EaterCount        int             `json:"dumpling_eater_count"`
	Kitchens          []KitchenStatus `json:"dumpling_kitchens"`
	Eaters            []EaterStatus   `json:"dumpling_eaters"`
}

// KitchenStatus is the per-kitchen entry inside SystemStatus: the kitchen's
// own identity frame plus where it connected from.
type KitchenStatus struct {
	KitchenName  string   `json:"kitchen"`
	Interface    string   `json:"interface"`
	Filter       string   `json:"filter"`
	Chefs        []string `json:"chefs"`
	PokeInterval float64  `json:"poke_interval_seconds"`
	Host         string   `json:"host"`
}

// EaterStatus is the per-eater entry inside SystemStatus: the eater's own
// identity frame plus where it connected from.
type EaterStatus struct {
	EaterName string `json:"eater_name"`
	Host      string `json:"host"`
}

func (h *Hub) announceStatus() {
	h.mu.Lock()
	status := SystemStatus{
		TotalDumplingsIn:  int(h.dumplingsIn),
		TotalDumplingsOut: int(h.dumplingsOut),
		ServerUptime:      time.Since(h.startedAt).Seconds(),
		KitchenCount:      len(h.kitchens),
		EaterCount:        len(h.eaters),
	}
	for _, k := range h.kitchens {
		status.Kitchens = append(status.Kitchens, KitchenStatus{
			KitchenName:  k.identity.KitchenName,
			Interface:    k.identity.Interface,
			Filter:       k.identity.Filter,
			Chefs:        k.identity.Chefs,
			PokeInterval: k.identity.PokeInterval,
			Host:         k.host,
		})
	}
	for _, e := range h.eaters {
		status.Eaters = append(status.Eaters, EaterStatus{EaterName: e.name, Host: e.host})
	}
	h.mu.Unlock()

	d := NewDumpling(SystemStatusChefName, nil, DriverInterval, status)
	frame, err := d.Encode()
	if err != nil {
		h.logger.Errorf("could not encode system status dumpling: %s", err)
		return
	}

	h.broadcast(frame)
}
