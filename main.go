package main

import "github.com/mpetrunic/ChainGuardian/cmd"

func main() {
	cmd.Execute()
}
