package main

import (
	"github.com/stevelan1995/workflow-engine/pkg/cli/cmd"
)

func main() {
	cmd.Execute()
}
