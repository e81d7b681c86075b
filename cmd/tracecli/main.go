package main

import "github.com/exec-trace/cmd/tracecli/cmd"

func main() {
	cmd.Execute()
}
