package main

import "github.com/khanhnv2901/safe-audit/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
