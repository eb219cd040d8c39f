package main

import (
	"snitch/cmd/cmd"
)

func main() {
	cmd.Execute()
}
