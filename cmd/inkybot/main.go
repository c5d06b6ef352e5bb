package main

import (
	"os"

	"github.com/inky-tools/inkybot/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
