package main

import (
	"os"

	"github.com/xtools-at/esp5791/cmd/chipctl/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
