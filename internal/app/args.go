package app

import (
	"os"
	"strings"
)

// DefaultConfigPath is used when neither --config nor WARRIOR_CONFIG is set.
const DefaultConfigPath = "warrior.yaml"

// ConfigPath extracts --config PATH or --config=PATH from args and returns
// the path together with the remaining arguments.
func ConfigPath(args []string) (string, []string) {
	path := ""
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			path = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			path = strings.TrimPrefix(args[i], "--config=")
		default:
			rest = append(rest, args[i])
		}
	}
	if path == "" {
		path = os.Getenv("WARRIOR_CONFIG")
	}
	if path == "" {
		path = DefaultConfigPath
	}
	return path, rest
}
