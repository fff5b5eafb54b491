package main

import "github.com/msomdec/tasktide/internal/cli"

func main() {
	cli.Execute()
}
