// The main package for the wikititles executable.
package main

import (
	"github.com/JakeFAU/wikititles-crawler/cmd"
)

func main() {
	cmd.Execute()
}
