// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"sigscope/internal/config"
	"sigscope/internal/source"
	"sigscope/pkg/build"
)

// Commands understood by main.
const (
	CommandRun  = "run"
	CommandInfo = "info"
)

// Options is the outcome of command line parsing. Command is empty when
// cobra handled the invocation itself (help, version).
type Options struct {
	Command string
	Config  *config.Config
}

// flags holds values that override the loaded configuration when set.
type flags struct {
	configPath string
	file       string
	windowSize int
	format     string
	sampleRate int
	fftWindow  string
	bands      int
	logLevel   string
	verbose    bool
	record     bool
	output     string
	gate       bool
	gateLevel  float64
	ws         string
	udp        string
	mqtt       string
}

// ParseArgs parses args (without the program name), loads the configuration
// file and applies every flag the user set on top of it.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	f := &flags{}

	load := func(cmd *cobra.Command, positional []string, command string) error {
		cfg, err := config.LoadConfig(f.configPath)
		if err != nil {
			return err
		}
		if err := f.apply(cmd, cfg); err != nil {
			return err
		}
		if len(positional) > 0 {
			cfg.Source.File = positional[0]
		}
		if cfg.Source.File == "" {
			return fmt.Errorf("no input file: pass one as argument, with --file or in the config file")
		}
		options.Command = command
		options.Config = cfg
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name + " [file]",
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, args, CommandRun)
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Info command
	infoCmd := &cobra.Command{
		Use:   "info [file]",
		Short: "Show format, sample rate and layout of an input file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, args, CommandInfo)
		},
	}
	rootCmd.AddCommand(infoCmd)

	pf := rootCmd.PersistentFlags()

	// Input Configuration
	pf.StringVarP(&f.configPath, "config", "c", "",
		"Configuration file (default: sigscope.yaml or config.yaml if present)")
	pf.StringVarP(&f.file, "file", "f", "",
		"Input WAV or raw float32 I/Q file")
	pf.IntVarP(&f.windowSize, "window-size", "w", config.DefaultWindowSize,
		"Complex samples per analysis window")
	pf.StringVar(&f.format, "format", config.DefaultFormat,
		"Input layout: auto, mono, stereo (I/Q) or raw")
	pf.IntVarP(&f.sampleRate, "sample-rate", "s", 0,
		"Sample rate of raw I/Q input, measured in Hertz (Hz)")

	// Analysis Configuration
	pf.StringVar(&f.fftWindow, "fft-window", config.DefaultFFTWindow,
		"Taper applied before the transform (Hann, Hamming, Blackman, ...)")
	pf.IntVar(&f.bands, "bands", config.DefaultBands,
		"Number of band-power bins")

	// Recording Configuration
	pf.BoolVarP(&f.record, "record", "r", false,
		"Record the delivered windows to a WAV file")
	pf.StringVarP(&f.output, "output", "o", "",
		"Recording file name. Default is <input>-YYYYMMDD-HHMMSS.wav in the output dir")

	// Gate Configuration
	pf.BoolVar(&f.gate, "gate", false,
		"Only publish windows whose peak is above --gate-level")
	pf.Float64Var(&f.gateLevel, "gate-level", config.DefaultGateLevelDB,
		"Gate threshold in dBFS")

	// Transport Configuration
	pf.StringVar(&f.ws, "ws", "",
		"Serve spectrum frames over WebSocket on this address (e.g. 127.0.0.1:8080)")
	pf.StringVar(&f.udp, "udp", "",
		"Send magnitude packets over UDP to this address")
	pf.StringVar(&f.mqtt, "mqtt", "",
		"Publish peak reports to this MQTT broker (e.g. tcp://127.0.0.1:1883)")

	// Debug Configuration
	pf.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel,
		"Log level: debug, info, warn or error")
	pf.BoolVarP(&f.verbose, "verbose", "v", false,
		"Show verbose output")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return options, nil
}

// apply copies the flags the user set onto cfg and revalidates it.
func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if changed("file") {
		cfg.Source.File = f.file
	}
	if changed("window-size") {
		cfg.Source.WindowSize = f.windowSize
	}
	if changed("format") {
		cfg.Source.Format = f.format
	}
	if changed("sample-rate") {
		cfg.Source.SampleRate = f.sampleRate
	}
	if changed("fft-window") {
		cfg.Source.FFTWindow = f.fftWindow
	}
	if changed("bands") {
		cfg.Analysis.Bands = f.bands
	}
	if changed("record") {
		cfg.Recording.Enabled = f.record
	}
	if changed("output") {
		cfg.Recording.Enabled = true
		cfg.Recording.File = f.output
	}
	if changed("gate") {
		cfg.Gate.Enabled = f.gate
	}
	if changed("gate-level") {
		cfg.Gate.Enabled = true
		cfg.Gate.LevelDB = f.gateLevel
	}
	if changed("ws") {
		cfg.Transport.WebSocketEnabled = true
		cfg.Transport.WebSocketAddress = f.ws
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = true
		cfg.Transport.UDPTargetAddress = f.udp
	}
	if changed("mqtt") {
		cfg.Transport.MQTTEnabled = true
		cfg.Transport.MQTTBroker = f.mqtt
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("verbose") {
		cfg.Debug = f.verbose
	}

	return cfg.Validate()
}

// Info opens the configured input and writes a short description of it.
func Info(w io.Writer, cfg *config.Config) error {
	params := cfg.SourceParams()
	src, err := source.Open(params)
	if err != nil {
		return err
	}
	defer src.Close()

	rate := src.SampleRate()
	size := src.WindowSize()
	fmt.Fprintf(w, "File:        %s\n", src.File())
	fmt.Fprintf(w, "Layout:      %s\n", src.Layout())
	fmt.Fprintf(w, "Sample rate: %d Hz\n", rate)
	fmt.Fprintf(w, "Window:      %d samples (%s)\n", size, params.Taper)
	fmt.Fprintf(w, "Resolution:  %.3f Hz/bin\n", float64(rate)/float64(size))
	return nil
}
