package main

import "tunlink/internal/cli"

func main() {
	cli.Execute()
}
