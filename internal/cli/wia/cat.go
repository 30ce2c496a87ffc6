package wia

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	wiadecoder "github.com/sargunv/wia/lib/format/wia"
)

var (
	catOffset           int64
	catLength           int64
	catWiiDecrypted     bool
	catPartitionDataOff int64
	catOutput           string
)

var catCmd = &cobra.Command{
	Use:   "cat <file>",
	Short: "Stream a byte range of a WIA disc image",
	Long: `Stream --length bytes of the logical disc image starting at --offset.

By default this reads the fully reconstructed disc image (encrypted, for
Wii partitions, exactly as a real disc would be). Pass --wii-decrypted to
read cleartext partition data instead, in which case --offset/--length
are relative to the partition's data region and --partition-data-offset
identifies the target partition by the absolute offset of its hashed
data region within the reconstructed disc image (see "wiacat probe").`,
	Args: cobra.ExactArgs(1),
	RunE: runCat,
}

func init() {
	catCmd.Flags().Int64Var(&catOffset, "offset", 0, "starting offset to read from")
	catCmd.Flags().Int64Var(&catLength, "length", -1, "number of bytes to read (default: to end of disc)")
	catCmd.Flags().BoolVar(&catWiiDecrypted, "wii-decrypted", false, "read cleartext partition data instead of the reconstructed disc image")
	catCmd.Flags().Int64Var(&catPartitionDataOff, "partition-data-offset", 0, "absolute offset of the partition's hashed data region (with --wii-decrypted)")
	catCmd.Flags().StringVarP(&catOutput, "output", "o", "", "output file (default: stdout)")
}

func runCat(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	dec, err := wiadecoder.Open(f)
	if err != nil {
		return fmt.Errorf("open wia decoder: %w", err)
	}

	length := catLength
	if length < 0 {
		length = int64(dec.DataSize()) - catOffset
	}
	if length < 0 {
		return fmt.Errorf("offset %d beyond disc size %d", catOffset, dec.DataSize())
	}

	out := os.Stdout
	if catOutput != "" {
		w, err := os.Create(catOutput)
		if err != nil {
			return fmt.Errorf("create %s: %w", catOutput, err)
		}
		defer w.Close()
		out = w
	}

	buf := make([]byte, length)
	if catWiiDecrypted {
		err = dec.ReadWiiDecrypted(uint64(catOffset), int(length), buf, uint64(catPartitionDataOff))
	} else {
		err = dec.Read(uint64(catOffset), int(length), buf)
	}
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	_, err = io.Copy(out, bytes.NewReader(buf))
	return err
}
