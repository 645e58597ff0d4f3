package main

import "echonode/cmd/echonode/cmd"

func main() {
	cmd.Execute()
}
