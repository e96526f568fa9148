package main

import "mangasync/cmd/cli/command"

func main() {
	command.Execute()
}
