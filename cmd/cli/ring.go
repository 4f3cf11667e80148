// Package cli provides debug subcommands for operating an anarcast
// fleet, grounded on the sync.Once-cached-singleton pattern used
// throughout this CLI.
package cli

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"anarcast/core"
)

var (
	debugRing     *core.Ring
	debugRingOnce sync.Once
)

func ringInit(cmd *cobra.Command, args []string) error {
	var initErr error
	debugRingOnce.Do(func() {
		debugRing = core.NewRing(nil)
		membershipAddr, err := cmd.Flags().GetString("membership")
		if err != nil {
			initErr = err
			return
		}
		client := core.NewMembershipClient(membershipAddr, nil)
		if _, err := core.LoadRing(client, debugRing); err != nil {
			initErr = err
		}
	})
	return initErr
}

func ringSize(cmd *cobra.Command, _ []string) error {
	fmt.Fprintf(cmd.OutOrStdout(), "ring size: %d\n", debugRing.Len())
	return nil
}

func ringRoute(cmd *cobra.Command, args []string) error {
	h := core.HashBytes([]byte(args[0]))
	for off := 0; off < 3; off++ {
		addr, err := debugRing.Route(h, off)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "route(%s, %d) = %s\n", h, off, addr)
	}
	return nil
}

var ringCmd = &cobra.Command{
	Use:               "ring",
	Short:             "Inspect the fleet routing ring",
	PersistentPreRunE: ringInit,
}

func init() {
	ringCmd.PersistentFlags().String("membership", "localhost:7000", "membership server address")
	ringCmd.AddCommand(&cobra.Command{
		Use:   "size",
		Short: "Show the number of ring members",
		RunE:  ringSize,
	})
	ringCmd.AddCommand(&cobra.Command{
		Use:   "route <key>",
		Short: "Show the primary and neighbor routes for a key",
		Args:  cobra.ExactArgs(1),
		RunE:  ringRoute,
	})
}

// RingCmd is the exported root command, wired into the anarcast CLI tree.
var RingCmd = ringCmd
