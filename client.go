package netdumplings

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/fasthttp/websocket"
)

// EaterIdentity is the frame an Eater sends immediately after connecting.
type EaterIdentity struct {
	EaterName string `json:"eater_name"`
}

// Eater consumes dumplings from a Hub's egress listener. OnDumpling is
// mandatory; OnConnect and OnConnectionLost are optional hooks.
type Eater struct {
	Name    string
	HubHost string
	HubPort int

	// Chefs restricts which chefs' dumplings reach OnDumpling. A nil slice
	// means accept every chef.
	Chefs []string

	// Count caps how many dumplings this eater will accept before closing
	// the connection with CloseEaterFull. Zero means unbounded.
	Count int

	OnConnect        func(hubURI string)
	OnDumpling       func(d *Dumpling)
	OnConnectionLost func(err error)

	option *EaterOption
	logger logger
}

// EaterOption configures an Eater's dial behavior.
type EaterOption struct {
	DialTimeout time.Duration
}

func (o *EaterOption) withDefaults() *EaterOption {
	out := EaterOption{}
	if o != nil {
		out = *o
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = 10 * time.Second
	}
	return &out
}

// NewEater constructs an Eater. opt may be nil for defaults.
func NewEater(name, hubHost string, hubPort int, opt *EaterOption) *Eater {
	return &Eater{
		Name:    name,
		HubHost: hubHost,
		HubPort: hubPort,
		option:  opt.withDefaults(),
		logger:  defaultLogger,
	}
}

func (e *Eater) wantsChef(chef string) bool {
	if e.Chefs == nil {
		return true
	}
	for _, c := range e.Chefs {
		if c == chef {
			return true
		}
	}
	return false
}

func (e *Eater) hubURI() string {
	return (&url.URL{
		Scheme: "ws",
		Host:   fmt.Sprintf("%s:%d", e.HubHost, e.HubPort),
		Path:   "/out",
	}).String()
}

// Run connects to the hub and eats dumplings until ctx is cancelled, the
// connection is lost, or Count dumplings have been eaten. It requires
// OnDumpling to be set.
func (e *Eater) Run(ctx context.Context) error {
	if e.OnDumpling == nil {
		return fmt.Errorf("netdumplings: eater %s has no OnDumpling handler configured", e.Name)
	}

	e.logger.Infof("%s: running dumpling eater", e.Name)

	dialer := &websocket.Dialer{HandshakeTimeout: e.option.DialTimeout}

	conn, _, err := dialer.DialContext(ctx, e.hubURI(), nil)
	if err != nil {
		return newConnectError(fmt.Sprintf("could not connect to hub at %s", e.hubURI()), err)
	}
	defer conn.Close()

	e.logger.Infof("%s: connected to hub at %s", e.Name, e.hubURI())

	if err := conn.WriteJSON(EaterIdentity{EaterName: e.Name}); err != nil {
		return newConnectError("could not send eater identity", err)
	}

	if e.OnConnect != nil {
		e.OnConnect(e.hubURI())
	}

	type frameResult struct {
		data []byte
		err  error
	}
	frames := make(chan frameResult)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			frames <- frameResult{data, err}
			if err != nil {
				return
			}
		}
	}()

	eaten := 0

	for {
		select {
		case <-ctx.Done():
			e.logger.Warnf("%s: connection to hub cancelled; closing", e.Name)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(CloseCancelled, closeCancelledReason),
				time.Now().Add(time.Second))
			return nil

		case res := <-frames:
			if res.err != nil {
				e.logger.Warnf("%s: lost connection to hub: %s", e.Name, res.err)
				if e.OnConnectionLost != nil {
					e.OnConnectionLost(res.err)
				}
				return newConnectionClosed("lost connection to hub", res.err)
			}

			d, err := Decode(res.data)
			if err != nil {
				e.logger.Errorf("%s: invalid dumpling: %s", e.Name, err)
				continue
			}

			if !e.wantsChef(d.Metadata.Chef) {
				continue
			}

			e.logger.Debugf("%s: received dumpling from %s", e.Name, d.Metadata.Chef)
			e.OnDumpling(d)
			eaten++

			if e.Count > 0 && eaten >= e.Count {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(CloseEaterFull, closeEaterFullReason),
					time.Now().Add(time.Second))
				return nil
			}
		}
	}
}
