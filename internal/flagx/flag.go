// Package flagx lets several parsers share os.Args by pre-filtering it.
//
// The server and the terminal client both read their config file path before
// the full flag set is built, because the file provides the defaults those
// flags override. flagx picks out just the flags one parser cares about so the
// second parse never sees an unknown flag.
package flagx

import (
	"flag"
	"strings"
)

// FilterArgs returns the subset of args made of the allowedFlags and their
// values, in their original order.
//
// Recognised forms:
//  1. Flag and value as separate tokens:  -c carenest.json
//  2. Flag and value joined with '=':     -config=carenest.json
//
// A separate value is only consumed when the next token does not start with a
// dash, so "-c -addr :8080" keeps "-c" alone and leaves "-addr" to be dropped.
//
// Parameters:
//
//	args          the command-line arguments, usually os.Args[1:]
//	allowedFlags  flag names exactly as typed, e.g. []string{"-c", "-config"}
//
// Returns:
//
//	A non-nil slice holding the allowed flags and the values that follow them.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// -flag=value
		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		// -flag value
		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// ConfigPath extracts the config file path provided via the -c or -config
// flags.
//
// Only these two flags are parsed; every other argument is ignored, so the
// caller can parse its own flag set afterwards without interference. When
// both are given the last one wins.
//
// Parameters:
//
//	args  the command-line arguments, usually os.Args[1:]
//
// Returns:
//
//	The requested path, or "" when no config file was requested.
func ConfigPath(args []string) string {
	var config string

	filtered := FilterArgs(args, []string{"-c", "-config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(filtered)

	return config
}
