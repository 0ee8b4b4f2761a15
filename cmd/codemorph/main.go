package main

import (
	"os"

	"github.com/mvp-joe/codemorph/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
