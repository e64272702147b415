package main

import (
	"fmt"
	"os"

	"github.com/Ganesh7742/ShareTheCode/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
