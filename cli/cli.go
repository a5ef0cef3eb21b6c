package cli

import (
	"fmt"
	"os"
)

const VERSION = "1.0.0"

const helpMessage = "\033[30mjgb - A bundler for mini-program platforms.\033[0m" + `

Usage: jgb [command] [options]

Commands:
  build                 Build the project once
  watch                 Build, then rebuild on source changes
  version               Show the version

Options:
  --config <file>       Config file path (default "jgb.config.json")
  --out-dir <dir>       Override the output directory
  --source-map          Emit source maps
  --cache               Skip rewriting unchanged outputs
  --log-level <level>   debug | info | warn | error
  --version, -v         Show the version
  --help, -h            Display this help message
`

// Run dispatches the command line.
func Run() {
	if len(os.Args) < 2 {
		fmt.Print(helpMessage)
		return
	}
	switch command := os.Args[1]; command {
	case "build":
		Build()
	case "watch":
		Watch()
	case "version":
		fmt.Println("jgb " + VERSION)
	default:
		for _, arg := range os.Args[1:] {
			if arg == "--version" {
				fmt.Println("jgb " + VERSION)
				return
			}
			if arg == "-v" {
				fmt.Println(VERSION)
				return
			}
		}
		fmt.Print(helpMessage)
	}
}
