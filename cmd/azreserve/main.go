package main

import (
	"github.com/finchops/azreserve/cmd/azreserve/commands"
)

func main() {
	commands.Execute()
}
