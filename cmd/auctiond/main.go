package main

import (
	"github.com/openclear/auctiond/internal/cli"
)

func main() {
	cli.Execute()
}
