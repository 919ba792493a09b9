// Command divide shares a total over weighted keys, rounding every share
// to the given precision while keeping the sum exact.
//
//	echo '{"values":{"a":1,"b":1,"c":1},"total":10}' | divide -dp 0
package main

import (
	"fmt"
	"os"

	"github.com/eshaffer321/ledger-balancer/internal/cli"
)

func main() {
	flags, err := cli.ParseDivideFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}
	if err := cli.RunDivide(flags, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "divide: %v\n", err)
		os.Exit(1)
	}
}
