package main

import (
	"github.com/oneconcern/zipmount/cmd/zipmount/cmd"
)

func main() {
	cmd.Execute()
}
