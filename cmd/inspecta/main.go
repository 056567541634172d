package main

import (
	"fmt"
	"os"

	"github.com/ppiankov/inspecta/internal/cli"
	"github.com/ppiankov/inspecta/internal/model"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error [%s]: %v\n", model.KindOf(err), err)
		os.Exit(cli.ExitCode(err))
	}
}
