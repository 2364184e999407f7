package main

import (
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/scholar/config"
	srv "github.com/mohammad-safakhou/scholar/internal/server"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var listen string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the research HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.General.Listen = listen
			}
			return srv.Run(cfg)
		},
	}
	serve.Flags().StringVar(&listen, "addr", "", "listen address (overrides config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/scholar.yaml)")

	return serve
}
