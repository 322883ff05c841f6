package main

import "github.com/serious-company/rd-themis/cli/cmd"

func main() {
	cmd.Execute()
}
