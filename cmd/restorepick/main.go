package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"restorepick/internal/app"
)

func main() {
	if err := app.Run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "restorepick:", err)
		os.Exit(1)
	}
}
