package main

import (
	"os"

	"certtrust/internal/importer"
	_ "certtrust/internal/logging"
)

func main() {
	os.Exit(importer.New().Run(os.Args[1:]))
}
