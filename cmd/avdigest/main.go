package main

import (
	"os"

	"horse.fit/avdigest/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
