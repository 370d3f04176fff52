package main

import (
	"os"

	"github.com/uleam-dti/dms/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
