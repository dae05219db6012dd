package main

import "github.com/notargets/reactamr/cmd"

func main() {
	cmd.Execute()
}
