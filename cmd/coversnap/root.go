package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "coversnap",
		Short: "Capture book cover panels at an exact physical size",
		Long: `CoverSnap crops the front, spine and back of a book cover out of camera
frames and resamples each one to its exact printed size.

Run "coversnap serve" for the capture page, or use guide, crop and combine on
still images.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $COVERSNAP_CONFIG or ~/.coversnap/config.yaml)")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newGuideCmd(&configPath))
	cmd.AddCommand(newCropCmd(&configPath))
	cmd.AddCommand(newCombineCmd(&configPath))

	return cmd
}
