package main

import "github.com/agentic-research/rigkit/cmd"

func main() {
	cmd.Execute()
}
