package netdumplings

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/fasthttp/websocket"
)

// KitchenIdentity is the first frame an Uplink sends after connecting,
// letting the Hub log and report which kitchen/chef combination just came
// online.
type KitchenIdentity struct {
	KitchenName  string   `json:"kitchen"`
	Interface    string   `json:"interface"`
	Filter       string   `json:"filter"`
	Chefs        []string `json:"chefs"`
	PokeInterval float64  `json:"poke_interval_seconds"`
}

// UplinkOption configures an Uplink's dial behavior.
type UplinkOption struct {
	// DialTimeout bounds the connection attempt. Zero means 10s.
	DialTimeout time.Duration
}

func (o *UplinkOption) withDefaults() *UplinkOption {
	out := UplinkOption{}
	if o != nil {
		out = *o
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = 10 * time.Second
	}
	return &out
}

// Uplink forwards a Kitchen's outbound dumpling frames to a Hub's ingress
// listener over a persistent websocket connection. There is no automatic
// reconnect: a failed connect or a connection dropped mid-stream is a
// TransportConnectError/ConnectionClosedError returned from Run, and it is
// the caller's decision whether the kitchen process should exit or not.
type Uplink struct {
	HubHost string
	HubPort int

	kitchen *Kitchen
	option  *UplinkOption
	logger  logger
}

// NewUplink builds an Uplink that drains k's outbound queue toward
// hubHost:hubPort.
func NewUplink(k *Kitchen, hubHost string, hubPort int, opt *UplinkOption) *Uplink {
	return &Uplink{
		HubHost: hubHost,
		HubPort: hubPort,
		kitchen: k,
		option:  opt.withDefaults(),
		logger:  defaultLogger,
	}
}

func (u *Uplink) dialURL() string {
	return (&url.URL{
		Scheme: "ws",
		Host:   fmt.Sprintf("%s:%d", u.HubHost, u.HubPort),
		Path:   "/in",
	}).String()
}

// Run dials the Hub, sends the kitchen identity frame, then forwards every
// frame the Kitchen produces until ctx is cancelled, the connection fails to
// establish, or the connection is lost. It does not retry; on connect
// failure or a dropped connection it logs and returns the error.
func (u *Uplink) Run(ctx context.Context) error {
	dialer := &websocket.Dialer{
		HandshakeTimeout: u.option.DialTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, u.dialURL(), nil)
	if err != nil {
		connErr := newConnectError(fmt.Sprintf("could not connect to hub at %s", u.dialURL()), err)
		u.logger.Errorf("%s", connErr)
		return connErr
	}
	defer conn.Close()

	u.logger.Infof("uplink connected to hub at %s", u.dialURL())

	if err := conn.WriteJSON(u.kitchen.IdentityFrame()); err != nil {
		connErr := newConnectError("could not send kitchen identity", err)
		u.logger.Errorf("%s", connErr)
		return connErr
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Drain and discard anything the hub sends on the ingress socket;
		// its only purpose is to detect the far end closing the connection.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(CloseCancelled, closeCancelledReason),
				time.Now().Add(time.Second))
			return nil
		case <-done:
			closedErr := newConnectionClosed("hub closed the ingress connection", nil)
			u.logger.Errorf("%s", closedErr)
			return closedErr
		case frame, ok := <-u.kitchen.Outbound():
			if !ok {
				return nil
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				closedErr := newConnectionClosed("could not write dumpling frame", err)
				u.logger.Errorf("%s", closedErr)
				return closedErr
			}
		}
	}
}
