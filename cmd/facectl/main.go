package main

import "github.com/saturnino-fabrica-de-software/facegate/internal/cli"

func main() {
	cli.Execute()
}
