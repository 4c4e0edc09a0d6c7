package main

import (
	"github.com/wfunc/walkerserver/cmd"
)

func main() {
	cmd.Execute()
}
