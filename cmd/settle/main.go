package main

import (
	"os"

	"github.com/cboone/settle/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
