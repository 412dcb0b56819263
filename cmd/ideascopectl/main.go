package main

import "github.com/ideascope/ideascope/internal/cli"

func main() {
	cli.Execute()
}
