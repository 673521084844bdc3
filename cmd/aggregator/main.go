package main

import (
	"os"

	"horse.fit/aggregator/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
