// Command dispatchctl inspects dispatch state and administers the provider
// directory.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openSession).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
