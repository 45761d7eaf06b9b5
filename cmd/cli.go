// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pulse/internal/config"
	"pulse/pkg/build"
)

// ParseArgs builds the runtime configuration: YAML file first (located via
// a pre-scan for --config so file values become the flag defaults), then
// CLI flags on top.
func ParseArgs() (*config.Config, error) {
	buildInfo := build.GetBuildFlags()

	path := configPathFromArgs(os.Args[1:])
	options, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Real-time musical structure extraction for light control",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.TUIMode = true
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = "list"
			options.TUIMode = false
		},
	}
	rootCmd.AddCommand(listCmd)

	// The config flag itself is consumed by the pre-scan; it is declared
	// here so cobra accepts and documents it.
	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", path,
		"Path to a YAML config file")

	// Audio Device Configuration
	rootCmd.PersistentFlags().IntVarP(&options.Audio.InputDevice, "device", "d", options.Audio.InputDevice,
		"Specify input device ID. Use 'list' command to see available devices.")
	rootCmd.PersistentFlags().BoolVarP(&options.Audio.LowLatency, "low-latency", "l", options.Audio.LowLatency,
		"Use low latency mode for real-time processing")
	rootCmd.PersistentFlags().Float64VarP(&options.Audio.GateThreshold, "gate", "g", options.Audio.GateThreshold,
		"Noise gate threshold (0..1 of full scale)")

	// Recording Configuration
	rootCmd.PersistentFlags().BoolVarP(&options.Recording.Enabled, "record", "r", options.Recording.Enabled,
		"Record audio from the specified input device")
	rootCmd.PersistentFlags().StringVarP(&options.Recording.OutputFile, "output", "o", options.Recording.OutputFile,
		"Output file name. Default is recording-MM-DD-YYYY-HHMMSS.wav")

	// Network fan-out
	rootCmd.PersistentFlags().BoolVar(&options.Transport.WebsocketEnabled, "ws", options.Transport.WebsocketEnabled,
		"Serve frames to websocket clients")
	rootCmd.PersistentFlags().BoolVar(&options.Transport.UDPEnabled, "udp", options.Transport.UDPEnabled,
		"Send binary frame packets over UDP")

	// Debug Configuration
	rootCmd.PersistentFlags().BoolVarP(&options.Debug, "verbose", "v", options.Debug,
		"Show verbose output")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	if options.Recording.Enabled && options.Recording.OutputFile == "" {
		options.Recording.OutputFile = "recording-" +
			time.Now().UTC().Format("02-01-2006-150405") +
			"." + config.DefaultFormat
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

// configPathFromArgs extracts the --config/-f value without running the
// full flag parser, so the file can be loaded before flags are bound.
func configPathFromArgs(args []string) string {
	for i, a := range args {
		switch {
		case a == "--config" || a == "-f":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		case strings.HasPrefix(a, "-f="):
			return strings.TrimPrefix(a, "-f=")
		}
	}
	return ""
}
