// The main package for the redirect-chains executable.
package main

import (
	"github.com/JakeFAU/redirect-chains/cmd"
)

func main() {
	cmd.Execute()
}
