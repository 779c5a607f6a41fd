package main

import "github.com/fakeyudi/popterm/cmd"

func main() {
	cmd.Execute()
}
