package main

import (
	"github.com/netdumplings/netdumplings/cmd/cmd"

	// Registers the compiled-in chef providers (PacketCountChef, ARPChef,
	// DNSLookupChef) so --chef/--chef-list can find them by name.
	_ "github.com/netdumplings/netdumplings/chefs"
)

func main() {
	cmd.Execute()
}
