package netdumplings

import (
	"context"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
)

func Test_Eater_RequiresOnDumpling(t *testing.T) {
	e := NewEater("e1", "127.0.0.1", 21360, nil)
	if err := e.Run(context.Background()); err == nil {
		t.Fatal("expected error when OnDumpling is unset")
	}
}

func Test_Eater_FiltersByChefAndRespectsCount(t *testing.T) {
	_, cancel := startTestHub(t, 21361, 21362)
	defer cancel()

	kitchenConn := dialTestSocket(t, "/in", 21361)
	defer kitchenConn.Close()
	_ = kitchenConn.WriteJSON(KitchenIdentity{KitchenName: "k1"})
	time.Sleep(50 * time.Millisecond)

	eater := NewEater("e1", "127.0.0.1", 21362, nil)
	eater.Chefs = []string{"WantedChef"}
	eater.Count = 1

	received := make(chan *Dumpling, 4)
	eater.OnDumpling = func(d *Dumpling) {
		received <- d
	}

	ctx, eaterCancel := context.WithCancel(context.Background())
	defer eaterCancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- eater.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	kitchenName := "k1"
	unwanted := NewDumpling("OtherChef", &kitchenName, DriverPacket, 1)
	wanted := NewDumpling("WantedChef", &kitchenName, DriverPacket, 2)

	for _, d := range []*Dumpling{unwanted, wanted} {
		frame, err := d.Encode()
		if err != nil {
			t.Fatalf("unexpected encode error: %v", err)
		}
		if err := kitchenConn.WriteMessage(websocket.TextMessage, frame); err != nil {
			t.Fatalf("unexpected write error: %v", err)
		}
	}

	select {
	case d := <-received:
		if d.Metadata.Chef != "WantedChef" {
			t.Errorf("have %s want WantedChef", d.Metadata.Chef)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for filtered dumpling")
	}

	select {
	case <-runDone:
		// Eater.Run returns nil after closing the connection at Count.
	case <-time.After(2 * time.Second):
		t.Fatal("eater did not stop after reaching Count")
	}
}
