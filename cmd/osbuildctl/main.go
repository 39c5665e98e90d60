package main

import (
	"os"

	"github.com/openimage/osbuildctl/cmd/osbuildctl/subcmd"
)

func main() {
	os.Exit(subcmd.Execute())
}
