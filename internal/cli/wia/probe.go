package wia

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	wiadecoder "github.com/sargunv/wia/lib/format/wia"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	labelStyle  = lipgloss.NewStyle().Faint(true)
)

var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Print WIA header and table summaries",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	dec, err := wiadecoder.Open(f)
	if err != nil {
		return fmt.Errorf("open wia decoder: %w", err)
	}

	fmt.Println(headerStyle.Render("Header"))
	fmt.Printf("%s %s\n", labelStyle.Render("Disc type:"), discTypeName(dec.DiscType()))
	fmt.Printf("%s %s\n", labelStyle.Render("Compression:"), dec.Compression())
	fmt.Printf("%s %d\n", labelStyle.Render("Chunk size:"), dec.BlockSize())
	fmt.Printf("%s %d bytes\n", labelStyle.Render("Logical size:"), dec.DataSize())
	fmt.Printf("%s %d bytes\n", labelStyle.Render("Raw size:"), dec.RawSize())

	fmt.Println(headerStyle.Render("Disc header"))
	fmt.Printf("%s %s\n", labelStyle.Render("Serial:"), dec.DiscHeader().GameSerial())
	fmt.Printf("%s %s\n", labelStyle.Render("Title:"), dec.DiscHeader().GameTitle())

	fmt.Println(headerStyle.Render("Tables"))
	fmt.Printf("%s %d\n", labelStyle.Render("Partitions:"), dec.NumPartitions())
	fmt.Printf("%s %d\n", labelStyle.Render("Raw-data entries:"), dec.NumRawDataEntries())
	fmt.Printf("%s %d\n", labelStyle.Render("Groups:"), dec.NumGroups())

	return nil
}

func discTypeName(t wiadecoder.DiscType) string {
	switch t {
	case wiadecoder.DiscTypeGameCube:
		return "GameCube"
	case wiadecoder.DiscTypeWii:
		return "Wii"
	default:
		return fmt.Sprintf("unknown (%d)", uint32(t))
	}
}
