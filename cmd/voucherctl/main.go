package main

import (
	"fmt"
	"os"

	"github.com/odyssey-erp/ledgerdesk/cmd/voucherctl/cli"
)

func main() {
	if err := cli.NewRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "voucherctl: %v\n", err)
		os.Exit(1)
	}
}
