package main

import (
	"os"

	"github.com/funnelforge/funnelforge/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
