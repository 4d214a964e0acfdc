package main

import "github.com/mcoot/liveshard/internal/cli"

func main() {
	cli.Execute()
}
