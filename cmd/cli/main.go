package main

import (
	"os"

	"github.com/wahajws/amast-crm-sub000/pkg/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
