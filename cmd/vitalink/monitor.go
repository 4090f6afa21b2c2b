package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/vitalink/internal/profile"
	"github.com/srg/vitalink/internal/radio/goble"
	"github.com/srg/vitalink/internal/scan"
	"github.com/srg/vitalink/internal/supervisor"
	"github.com/srg/vitalink/internal/vitals"
	"github.com/srg/vitalink/pkg/config"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream vitals from a nearby BLE peripheral",
	Long: `Scan for a blood pressure or heart rate peripheral, connect to the first
match and print the published vitals snapshot as readings arrive.

The pipeline retries indefinitely: connect failures and disconnects trigger
a short backoff followed by a rescan. Interrupt with Ctrl+C.`,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	adapter, err := goble.New(cfg.ConnectTimeout(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize radio: %w", err)
	}
	defer adapter.Close()

	desc := profile.Known()
	scanner := scan.New(adapter, desc, cfg.SettleDelay(), logger)
	publisher := vitals.NewPublisher(64, logger)
	sup := supervisor.New(adapter, scanner, publisher, desc, cfg.RetryBackoff(), logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go renderSnapshots(ctx, publisher)

	if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return context.Canceled
}

func renderSnapshots(ctx context.Context, publisher *vitals.Publisher) {
	deviceColor := color.New(color.FgCyan)
	valueColor := color.New(color.FgGreen, color.Bold)
	absentColor := color.New(color.FgRed)

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-publisher.Observe():
			if !ok {
				return
			}
			printSnapshot(snap, deviceColor, valueColor, absentColor)
		}
	}
}

func printSnapshot(snap vitals.Snapshot, deviceColor, valueColor, absentColor *color.Color) {
	if snap.ActiveDevice != nil {
		name := snap.ActiveDevice.Name
		if name == "" {
			name = "unnamed"
		}
		deviceColor.Printf("%s (%s, %d dBm)  ", snap.ActiveDevice.ID, name, snap.ActiveDevice.RSSI)
	} else {
		absentColor.Print("no active device  ")
	}

	printField("sys", snap.Systolic, "mmHg", valueColor, absentColor)
	printField("dia", snap.Diastolic, "mmHg", valueColor, absentColor)
	if snap.HeartRate != nil {
		hr := uint16(*snap.HeartRate)
		printField("hr", &hr, "bpm", valueColor, absentColor)
	} else {
		printField("hr", nil, "bpm", valueColor, absentColor)
	}
	fmt.Println()
}

func printField(label string, value *uint16, unit string, valueColor, absentColor *color.Color) {
	fmt.Printf("%s: ", label)
	if value == nil {
		absentColor.Print("--  ")
		return
	}
	valueColor.Printf("%d %s  ", *value, unit)
}
