package main

import (
	"fmt"
	"os"

	"github.com/sargunv/wia/internal/cli/wia"
)

func main() {
	if err := wia.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
