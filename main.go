package main

import "github.com/fakeyudi/printrescue/cmd"

func main() {
	cmd.Execute()
}
