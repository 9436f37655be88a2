package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/encodecore/encodecore/internal/ffmpeg"
	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect FFmpeg capabilities used for codec negotiation",
	Long: `Detect the local FFmpeg binary and its supported encoders, decoders,
and hardware accelerators, and print the result as JSON.

This feeds the Codec Manager's negotiation step (the design, "queries
platform support") the same way Controller.DetectCapabilities does.`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().Bool("pretty", false, "pretty-print JSON output")
	detectCmd.Flags().Duration("timeout", 30*time.Second, "detection timeout")
}

func runDetect(cmd *cobra.Command, _ []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	pretty, _ := cmd.Flags().GetBool("pretty")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	detector := ffmpeg.NewBinaryDetector()
	info, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	var output []byte
	if pretty {
		output, err = json.MarshalIndent(info, "", "  ")
	} else {
		output, err = json.Marshal(info)
	}
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	fmt.Fprintln(os.Stdout, string(output))
	return nil
}
