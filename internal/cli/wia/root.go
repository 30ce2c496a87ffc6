// Package wia provides the wiacat command-line tool's subcommands over
// the lib/format/wia decoder.
package wia

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wiacat",
	Short: "Inspect and extract data from WIA disc images",
	Long: `wiacat reads WIA container files: compressed GameCube and
Wii disc images used by Dolphin and CleanRip. RVZ files are not accepted.

  probe   print header and table summaries
  cat     stream a byte range of the logical disc image to stdout`,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(catCmd)
}

// Execute runs the wiacat root command.
func Execute() error {
	return rootCmd.Execute()
}
