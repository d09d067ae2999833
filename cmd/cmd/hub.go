package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/netdumplings/netdumplings"
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "hub runs the central dumpling broker",
	Run: func(cmd *cobra.Command, args []string) {
		opt := &netdumplings.HubOption{
			Address:    viper.GetString("address"),
			InPort:     viper.GetInt("in-port"),
			OutPort:    viper.GetInt("out-port"),
			StatusFreq: viper.GetDuration("status-freq"),
		}

		hub := netdumplings.NewHub(opt)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt)
		go func() {
			<-quit
			cancel()
		}()

		if err := hub.Run(ctx); err != nil {
			netdumplings.Logger().Fatalf("hub exited: %s", err)
		}
	},
}

func init() {
	hubCmd.Flags().String("address", netdumplings.DefaultHubHost, "address to listen on")
	hubCmd.Flags().Int("in-port", netdumplings.DefaultHubInPort, "port kitchens connect to")
	hubCmd.Flags().Int("out-port", netdumplings.DefaultHubOutPort, "port eaters connect to")
	hubCmd.Flags().Duration("status-freq", netdumplings.DefaultStatusFreq, "frequency of system status announcements")

	_ = viper.BindPFlag("address", hubCmd.Flags().Lookup("address"))
	_ = viper.BindPFlag("in-port", hubCmd.Flags().Lookup("in-port"))
	_ = viper.BindPFlag("out-port", hubCmd.Flags().Lookup("out-port"))
	_ = viper.BindPFlag("status-freq", hubCmd.Flags().Lookup("status-freq"))

	rootCmd.AddCommand(hubCmd)
}
