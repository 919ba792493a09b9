package cli

import (
	"flag"
	"io"
	"strconv"
)

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	EnvFile    string
	Port       int
	Verbose    bool
}

// ParseServeFlags parses command line flags for the serve command.
func ParseServeFlags(args []string) (*ServeFlags, error) {
	fs := flag.NewFlagSet("balancer", flag.ContinueOnError)
	flags := &ServeFlags{}
	fs.StringVar(&flags.ConfigPath, "config", "config.yaml", "Configuration file path (falls back to environment variables)")
	fs.StringVar(&flags.EnvFile, "env", ".env", "Environment file to load before reading configuration")
	fs.IntVar(&flags.Port, "port", 0, "Port to listen on (0 = from config)")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

// DivideFlags holds the CLI flags for the divide command.
type DivideFlags struct {
	Precision int
	Total     *float64
	Pretty    bool
	Input     string
}

// ParseDivideFlags parses command line flags for the divide command.
// A negative precision or an unset total means "take it from the input".
func ParseDivideFlags(args []string, output io.Writer) (*DivideFlags, error) {
	fs := flag.NewFlagSet("divide", flag.ContinueOnError)
	fs.SetOutput(output)
	flags := &DivideFlags{}
	fs.IntVar(&flags.Precision, "dp", -1, "Decimal places (default: from input, else 2)")
	fs.Func("total", "Target total (default: from input)", func(v string) error {
		total, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		flags.Total = &total
		return nil
	})
	fs.BoolVar(&flags.Pretty, "pretty", false, "Indent the JSON output")
	fs.StringVar(&flags.Input, "in", "-", "Input file, - for stdin")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}
