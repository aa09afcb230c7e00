package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newConfigCmd(load func() (config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				path := cfg.file
				if path == "" {
					dir, err := configDir()
					if err != nil {
						return err
					}
					path = filepath.Join(dir, configName+"."+configType)
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration with the key redacted",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				key := "(not set)"
				if cfg.apiKey != "" {
					key = "(set)"
				}
				fmt.Fprintf(out, "api_key = %s\n", key)
				fmt.Fprintf(out, "model = %s\nvoice = %s\n", cfg.model, cfg.voice)
				fmt.Fprintf(out, "audio.input_rate = %d\naudio.output_rate = %d\naudio.frame_size = %d\n", cfg.inputRate, cfg.outputRate, cfg.frameSize)
				fmt.Fprintf(out, "vision.tier = %s\nvision.interval = %s\n", cfg.visionTier, cfg.visionInterval)
				fmt.Fprintf(out, "http.addr = %s\n", cfg.httpAddr)
				return nil
			},
		},
	)
	return cmd
}
