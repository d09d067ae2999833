package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/netdumplings/netdumplings"
	"github.com/netdumplings/netdumplings/loaderplugin"
)

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "sniff runs a packet-sniffing kitchen and uplinks dumplings to a hub",
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()

		if ok, _ := flags.GetBool("chef-list"); ok {
			for _, name := range netdumplings.RegisteredProviders() {
				fmt.Println(name)
			}
			return
		}

		kitchenName, _ := flags.GetString("kitchen-name")
		hub, _ := flags.GetString("hub")
		iface, _ := flags.GetString("interface")
		filter, _ := flags.GetString("filter")
		pokeInterval, _ := flags.GetDuration("poke-interval")

		kitchen := netdumplings.NewKitchen(kitchenName, iface, filter, pokeInterval, nil)

		loaded := 0

		chefSpecs, _ := flags.GetStringSlice("chef")
		chefScripts, _ := flags.GetStringSlice("chef-script")
		chefConfig, _ := flags.GetString("chef-config")

		if len(chefSpecs) == 0 && len(chefScripts) == 0 && chefConfig == "" {
			// Nothing named on the command line at all: load every
			// compiled-in provider, matching --chef's documented
			// "omit = all" default.
			chefSpecs = netdumplings.RegisteredProviders()
		}

		for _, spec := range chefSpecs {
			chef, err := buildCompiledChef(kitchenName, spec)
			if err != nil {
				netdumplings.Logger().Fatalf("could not build chef %q: %s", spec, err)
			}
			kitchen.RegisterChef(chef)
			loaded++
		}

		for _, spec := range chefScripts {
			chef, err := buildScriptedChef(kitchenName, spec)
			if err != nil {
				netdumplings.Logger().Fatalf("could not build scripted chef %q: %s", spec, err)
			}
			kitchen.RegisterChef(chef)
			loaded++
		}

		if chefConfig != "" {
			data, err := os.ReadFile(chefConfig)
			if err != nil {
				netdumplings.Logger().Fatalf("could not read chef config %q: %s", chefConfig, err)
			}
			chefs, err := netdumplings.BuildChefs(data)
			if err != nil {
				netdumplings.Logger().Fatalf("could not build chefs from %q: %s", chefConfig, err)
			}
			for _, chef := range chefs {
				kitchen.RegisterChef(chef)
				loaded++
			}
		}

		if loaded == 0 {
			netdumplings.Logger().Errorf("no chef was loadable; refusing to run a kitchen with no chefs")
			os.Exit(1)
		}

		hubHost, hubPort := splitHubAddress(hub)
		uplink := netdumplings.NewUplink(kitchen, hubHost, hubPort, nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt)
		go func() {
			<-quit
			cancel()
		}()

		go func() {
			if err := uplink.Run(ctx); err != nil {
				netdumplings.Logger().Errorf("uplink exited: %s", err)
			}
		}()

		if err := kitchen.Run(ctx); err != nil {
			netdumplings.Logger().Fatalf("kitchen exited: %s", err)
		}
	},
}

// buildCompiledChef resolves a "provider" or "id:provider" spec against the
// compiled-in chef registry.
func buildCompiledChef(kitchenName, spec string) (netdumplings.Chef, error) {
	id, provider := splitIDProvider(spec)
	cs := netdumplings.ChefSerialization{ID: id, Provider: provider}
	return cs.Build()
}

// buildScriptedChef resolves a "kind:payload:symbol" spec via loaderplugin.
func buildScriptedChef(kitchenName, spec string) (netdumplings.Chef, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("expected kind:payload:symbol, got %q", spec)
	}

	provider, err := loaderplugin.Build(&loaderplugin.ChefScript{
		Kind:    parts[0],
		Payload: parts[1],
		Symbol:  parts[2],
	})
	if err != nil {
		return nil, err
	}

	return provider.New(parts[2], nil)
}

func splitIDProvider(spec string) (id, provider string) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return spec, spec
}

func splitHubAddress(hub string) (host string, port int) {
	host = netdumplings.DefaultHubHost
	port = netdumplings.DefaultHubInPort

	parts := strings.SplitN(hub, ":", 2)
	if parts[0] != "" {
		host = parts[0]
	}
	if len(parts) == 2 {
		fmt.Sscanf(parts[1], "%d", &port)
	}
	return host, port
}

func init() {
	sniffCmd.Flags().String("kitchen-name", "nameless_kitchen", "name of this kitchen")
	sniffCmd.Flags().String("hub", fmt.Sprintf("%s:%d", netdumplings.DefaultHubHost, netdumplings.DefaultHubInPort), "hub address (host:port)")
	sniffCmd.Flags().String("interface", "all", "network interface to sniff")
	sniffCmd.Flags().String("filter", "", "BPF filter expression")
	sniffCmd.Flags().StringSlice("chef", nil, "compiled-in chef to load, as provider or id:provider (repeatable); omit to load every compiled-in provider")
	sniffCmd.Flags().StringSlice("chef-script", nil, "dynamically loaded chef, as kind:payload:symbol (repeatable)")
	sniffCmd.Flags().String("chef-config", "", "path to a YAML chef-config document (list of {id, provider, attributes})")
	sniffCmd.Flags().Duration("poke-interval", netdumplings.DefaultPokeInterval, "interval between chef interval pokes; 0 disables")
	sniffCmd.Flags().Bool("chef-list", false, "list compiled-in chef providers and exit")

	rootCmd.AddCommand(sniffCmd)
}
