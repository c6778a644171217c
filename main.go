// The main package for the reddit-collector executable.
package main

import (
	"github.com/JakeFAU/reddit-collector/cmd"
)

func main() {
	cmd.Execute()
}
