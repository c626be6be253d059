package main

import "energy-desk/internal/cli"

func main() {
	cli.Execute()
}
