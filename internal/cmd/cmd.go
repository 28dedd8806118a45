// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/bosch_imu/internal/app"
	"github.com/relabs-tech/bosch_imu/internal/config"
	"github.com/relabs-tech/bosch_imu/internal/sensors"
)

func rootPersistentPreRunE(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	if err := config.InitGlobal(path); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debug, _ := cmd.Flags().GetBool("debug")
	if debug || config.Get().Debug {
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func produceRunE(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()
	return app.RunProducer(ctx, config.Get())
}

func consoleRunE(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()
	return app.RunConsole(ctx, config.Get(), cmd.OutOrStdout())
}

func webRunE(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()
	return app.RunWeb(ctx, config.Get())
}

func displayRunE(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()
	return app.RunDisplay(ctx, config.Get())
}

func debugRunE(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	ctx, cancel := signalContext(cmd)
	defer cancel()

	dev, err := sensors.Open(cfg)
	if err != nil {
		return err
	}
	defer dev.Close()

	// The console can re-run init, so a failed first pass is not fatal here.
	if err := dev.Initialize(); err != nil {
		log.WithError(err).Warn("debug: initialization failed")
	}

	mux := http.NewServeMux()
	app.NewRegisterDebugServer(dev).Routes(mux)
	return app.Serve(ctx, &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: mux,
	})
}

func probeRunE(cmd *cobra.Command, args []string) error {
	dev, err := sensors.Open(config.Get())
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.Initialize(); err != nil {
		return err
	}
	rates := dev.SampleRates()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "accelerometer: %s\n", rates.Acceleration)
	fmt.Fprintf(out, "gyroscope:     %s\n", rates.Gyroscope)
	fmt.Fprintf(out, "magnetometer:  %s\n", rates.MagneticField)

	s, err := dev.ReadSample()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, app.FormatSample(s))
	return nil
}

func configRunE(cmd *cobra.Command, args []string) error {
	printYAML, _ := cmd.Flags().GetBool("print")
	if !printYAML {
		fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
		return nil
	}
	buf, err := config.Get().YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(buf)
	return err
}

// NewRootCmd builds the imu command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "imu",
		Short:             "BMI270 + BMM150 inertial measurement unit tools",
		SilenceUsage:      true,
		PersistentPreRunE: rootPersistentPreRunE,
	}
	root.PersistentFlags().String("config", "", "KEY=VALUE configuration file, defaults plus IMU_* environment when empty")
	root.PersistentFlags().Bool("debug", false, "toggle debug logging")

	root.AddCommand(&cobra.Command{
		Use:   "produce",
		Short: "configure the IMU and publish samples to MQTT",
		Long: `produce configures the BMI270 and BMM150 and publishes one JSON sample per
data-ready interrupt (IRQ_PIN set, SAMPLE_INTERVAL=0) or every SAMPLE_INTERVAL ms.`,
		RunE: produceRunE,
	})
	root.AddCommand(&cobra.Command{
		Use:   "console",
		Short: "print samples published on TOPIC_IMU",
		RunE:  consoleRunE,
	})
	root.AddCommand(&cobra.Command{
		Use:   "web",
		Short: "serve the latest MQTT sample on /api/imu",
		RunE:  webRunE,
	})
	root.AddCommand(&cobra.Command{
		Use:   "display",
		Short: "mirror samples on the SSD1306 OLED",
		RunE:  displayRunE,
	})
	root.AddCommand(&cobra.Command{
		Use:   "debug",
		Short: "serve the register console over WebSocket",
		Long: `debug opens the IMU and serves a WebSocket register console on /ws/registers
and live samples on /api/imu. Writes are limited to registers marked writable.`,
		Example: `  imu debug --config imu_config.txt`,
		RunE:    debugRunE,
	})
	root.AddCommand(&cobra.Command{
		Use:   "probe",
		Short: "configure the IMU once and print its sample rates and one sample",
		RunE:  probeRunE,
	})

	configCmd := &cobra.Command{
		Use:     "config",
		Short:   "validate the configuration",
		Example: `  imu config --config imu_config.txt --print`,
		RunE:    configRunE,
	}
	configCmd.Flags().Bool("print", false, "print the effective config as YAML")
	root.AddCommand(configCmd)

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}
