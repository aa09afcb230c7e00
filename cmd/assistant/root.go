package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "assistant",
		Short:         "Voice-first assistant on a live multimodal session",
		Long:          "assistant keeps a live audio session with the Gemini Live API, plays the spoken replies, optionally streams camera frames, and runs the device actions the model asks for.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default $XDG_CONFIG_HOME/live-assistant/config.toml)")

	load := func() (config, error) { return loadConfig(v, configFile) }

	rootCmd.AddCommand(
		newRunCmd(v, load),
		newToolsCmd(),
		newConfigCmd(load),
	)
	return rootCmd
}
