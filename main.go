package main

import "github.com/kozaktomas/visitor-desk/cmd"

func main() {
	cmd.Execute()
}
