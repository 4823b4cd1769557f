// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	pingCount    int
	pingInterval int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the printer link accepts writes",
	Long: `Open the printer link and send ESC @ (initialise) heartbeats.

The M110 does not answer, so a ping only proves that the device opened and
accepted the bytes within the write timeout. A failed write closes the link
and the next ping reconnects with backoff, the same way print jobs do.

Exit codes:
  0 - All pings written
  1 - One or more pings failed
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().IntVar(&pingInterval, "interval", 1000, "Delay between pings in milliseconds")
}

func runPing(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, false, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.close()

	ctx := cmd.Context()

	fmt.Printf("m110 - Link Ping\n")
	fmt.Printf("Device: %s\n", s.link.Device())
	fmt.Printf("Count: %d pings\n\n", pingCount)

	if err := s.link.Open(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	successCount := 0
	failCount := 0
	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		if !s.link.IsOpen() {
			if err := s.link.Reconnect(ctx); err != nil {
				fmt.Printf("RECONNECT FAILED: %v\n", err)
				failCount++
				continue
			}
		}

		start := time.Now()
		if err := s.link.Heartbeat(); err != nil {
			fmt.Printf("WRITE FAILED: %v\n", err)
			failCount++
		} else {
			fmt.Printf("OK, write took %v\n", time.Since(start).Round(time.Microsecond))
			successCount++
		}

		if i < pingCount {
			time.Sleep(time.Duration(pingInterval) * time.Millisecond)
		}
	}

	info := s.link.Info()
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d written, %.0f%% failed\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)
	fmt.Printf("Link state: %s", info.State)
	if info.LastError != nil {
		fmt.Printf(" (last error: %v)", info.LastError)
	}
	fmt.Println()

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
