package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/netdumplings/netdumplings"
)

var eatCmd = &cobra.Command{
	Use:   "eat",
	Short: "eat connects to a hub and prints dumplings as they arrive",
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()

		hub, _ := flags.GetString("hub")
		name, _ := flags.GetString("eater-name")
		hubHost, hubPort := splitHubAddress(hub)

		eater := netdumplings.NewEater(name, hubHost, hubPort, nil)

		if chefs, _ := flags.GetStringSlice("chef"); len(chefs) > 0 {
			eater.Chefs = chefs
		}
		eater.Count, _ = flags.GetInt("count")

		eater.OnConnect = func(hubURI string) {
			netdumplings.Logger().Infof("%s: connected to %s", eater.Name, hubURI)
		}
		eater.OnConnectionLost = func(err error) {
			netdumplings.Logger().Warnf("%s: lost connection: %s", eater.Name, err)
		}
		eater.OnDumpling = func(d *netdumplings.Dumpling) {
			encoded, err := json.Marshal(d)
			if err != nil {
				return
			}
			fmt.Println(string(encoded))
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt)
		go func() {
			<-quit
			cancel()
		}()

		if err := eater.Run(ctx); err != nil {
			netdumplings.Logger().Fatalf("eater exited: %s", err)
		}
	},
}

func init() {
	eatCmd.Flags().String("eater-name", "nameless_eater", "name of this eater")
	eatCmd.Flags().String("hub", fmt.Sprintf("%s:%d", netdumplings.DefaultHubHost, netdumplings.DefaultHubOutPort), "hub address (host:port)")
	eatCmd.Flags().StringSlice("chef", nil, "chef name to filter on (repeatable); omit for all chefs")
	eatCmd.Flags().Int("count", 0, "number of dumplings to eat before exiting; 0 means forever")

	rootCmd.AddCommand(eatCmd)
}
