package main

import "github.com/icco/chordcoach/cmd"

func main() {
	cmd.Execute()
}
