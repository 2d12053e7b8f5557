package main

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dragoonfly/core"
)

func main() {
	var degree int
	var out string

	rootCmd := &cobra.Command{
		Use:   "trusted-setup",
		Short: "generate a toy-secure Powers blob for local experimentation",
		RunE: func(cmd *cobra.Command, args []string) error {
			powers, err := core.GenerateTrustedSetup(degree, rand.Reader)
			if err != nil {
				return fmt.Errorf("trusted-setup: %w", err)
			}
			if err := powers.Save(out); err != nil {
				return fmt.Errorf("trusted-setup: %w", err)
			}
			fmt.Printf("wrote powers of degree %d to %s\n", degree, out)
			return nil
		},
	}
	rootCmd.Flags().IntVar(&degree, "degree", 256, "maximum polynomial degree to support")
	rootCmd.Flags().StringVar(&out, "out", "powers.bin", "output path for the powers blob")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
