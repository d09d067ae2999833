package netdumplings

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
)

func startTestHub(t *testing.T, inPort, outPort int) (*Hub, context.CancelFunc) {
	t.Helper()

	hub := NewHub(&HubOption{
		Address:    "127.0.0.1",
		InPort:     inPort,
		OutPort:    outPort,
		StatusFreq: time.Hour, // keep status announcements out of the way of these tests
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := hub.Run(ctx); err != nil {
			t.Logf("hub exited: %v", err)
		}
	}()

	// Give the listeners a moment to bind.
	time.Sleep(50 * time.Millisecond)

	return hub, cancel
}

func dialTestSocket(t *testing.T, path string, port int) *websocket.Conn {
	t.Helper()

	u := (&url.URL{Scheme: "ws", Host: "127.0.0.1:" + strconv.Itoa(port), Path: path}).String()
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("could not dial %s: %v", u, err)
	}
	return conn
}

func Test_Hub_RelaysDumplingFromKitchenToEater(t *testing.T) {
	_, cancel := startTestHub(t, 21347, 21348)
	defer cancel()

	kitchenConn := dialTestSocket(t, "/in", 21347)
	defer kitchenConn.Close()

	if err := kitchenConn.WriteJSON(KitchenIdentity{KitchenName: "k1"}); err != nil {
		t.Fatalf("could not send kitchen identity: %v", err)
	}

	eaterConn := dialTestSocket(t, "/out", 21348)
	defer eaterConn.Close()

	if err := eaterConn.WriteJSON(EaterIdentity{EaterName: "e1"}); err != nil {
		t.Fatalf("could not send eater identity: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	kitchenName := "k1"
	d := NewDumpling("TestChef", &kitchenName, DriverPacket, map[string]interface{}{"hello": "world"})
	frame, err := d.Encode()
	if err != nil {
		t.Fatalf("could not encode dumpling: %v", err)
	}

	if err := kitchenConn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("could not write dumpling: %v", err)
	}

	eaterConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, received, err := eaterConn.ReadMessage()
	if err != nil {
		t.Fatalf("eater did not receive dumpling: %v", err)
	}

	decoded, err := Decode(received)
	if err != nil {
		t.Fatalf("received invalid dumpling: %v", err)
	}

	if decoded.Metadata.Chef != "TestChef" {
		t.Errorf("have %s want TestChef", decoded.Metadata.Chef)
	}
}

func Test_Hub_DropsInvalidDumpling(t *testing.T) {
	_, cancel := startTestHub(t, 21349, 21350)
	defer cancel()

	kitchenConn := dialTestSocket(t, "/in", 21349)
	defer kitchenConn.Close()
	_ = kitchenConn.WriteJSON(KitchenIdentity{KitchenName: "k1"})

	eaterConn := dialTestSocket(t, "/out", 21350)
	defer eaterConn.Close()
	_ = eaterConn.WriteJSON(EaterIdentity{EaterName: "e1"})

	time.Sleep(50 * time.Millisecond)

	// No "metadata.chef" key, so the hub should log an error and drop this
	// rather than forwarding it.
	_ = kitchenConn.WriteMessage(websocket.TextMessage, []byte(`{"metadata":{},"payload":1}`))

	kitchenName := "k1"
	d := NewDumpling("TestChef", &kitchenName, DriverPacket, 1)
	frame, _ := d.Encode()
	_ = kitchenConn.WriteMessage(websocket.TextMessage, frame)

	eaterConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, received, err := eaterConn.ReadMessage()
	if err != nil {
		t.Fatalf("eater did not receive the valid dumpling: %v", err)
	}

	decoded, err := Decode(received)
	if err != nil {
		t.Fatalf("received invalid dumpling: %v", err)
	}
	if decoded.Metadata.Chef != "TestChef" {
		t.Errorf("have %s want TestChef; invalid dumpling was not dropped as expected", decoded.Metadata.Chef)
	}
}

func Test_Hub_FansOutToMultipleEaters(t *testing.T) {
	_, cancel := startTestHub(t, 21351, 21352)
	defer cancel()

	kitchenConn := dialTestSocket(t, "/in", 21351)
	defer kitchenConn.Close()
	_ = kitchenConn.WriteJSON(KitchenIdentity{KitchenName: "k1"})

	eater1 := dialTestSocket(t, "/out", 21352)
	defer eater1.Close()
	_ = eater1.WriteJSON(EaterIdentity{EaterName: "e1"})

	eater2 := dialTestSocket(t, "/out", 21352)
	defer eater2.Close()
	_ = eater2.WriteJSON(EaterIdentity{EaterName: "e2"})

	time.Sleep(50 * time.Millisecond)

	kitchenName := "k1"
	d := NewDumpling("TestChef", &kitchenName, DriverPacket, 1)
	frame, _ := d.Encode()
	_ = kitchenConn.WriteMessage(websocket.TextMessage, frame)

	for _, conn := range []*websocket.Conn{eater1, eater2} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Errorf("eater did not receive fanned-out dumpling: %v", err)
		}
	}
}
