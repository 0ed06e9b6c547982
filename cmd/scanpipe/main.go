package main

import "github.com/scanpipe/scanpipe/internal/cli"

func main() {
	cli.Execute()
}
