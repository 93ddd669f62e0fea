// Command ventsync is a terminal front end for the progress engine. It is
// mainly a development and support tool: it records progress against a
// lesson, inspects local state, and forces synchronization cycles against
// a running progress API.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A .env in the working directory seeds the environment; absence is
	// not an error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	Execute()
}
