// The main package for the batchfetch executable.
package main

import (
	"github.com/webharvest/batchfetch/cmd"
)

func main() {
	cmd.Execute()
}
