package main

import (
	"github.com/vietddude/pipesync/internal/cli"
)

func main() {
	cli.Execute()
}
