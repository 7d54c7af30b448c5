package main

import (
	"context"

	"github.com/aretw0/autotron/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the graph and its HTTP control surface",
	Long: `Loads a graph (a file, a stored graph, or the last active one), starts ticking it
and serves the JSON control API until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTPAddr = addr
		}
		if store, _ := cmd.Flags().GetString("store"); store != "" {
			cfg.Store = store
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		graphPath, _ := cmd.Flags().GetString("graph")
		graphName, _ := cmd.Flags().GetString("name")
		simulate, _ := cmd.Flags().GetBool("simulate")

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		err = cli.Serve(ctx, cli.ServeOptions{
			Config:    cfg,
			GraphPath: graphPath,
			GraphName: graphName,
			Simulate:  simulate,
			Logger:    logger,
		})
		if sig := ctx.Signal(); sig != nil {
			logger.Info("Stopped", "signal", sig.String())
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("graph", "g", "", "Graph document file to load")
	serveCmd.Flags().StringP("name", "n", "", "Stored graph to load")
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
	serveCmd.Flags().String("store", "", "Graph store backend: file, redis, memory (overrides config)")
	serveCmd.Flags().Bool("simulate", false, "Drive an in-process device simulator")
	serveCmd.MarkFlagsMutuallyExclusive("graph", "name")
}
