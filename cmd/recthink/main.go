// RecThink terminal client and local presentation bridge.
package main

import (
	"fmt"
	"os"

	"github.com/recthink/recthink-client/cmd/recthink/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
