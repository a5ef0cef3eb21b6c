package main

import (
	"github.com/moesuiga/jgb/cli"
)

func main() {
	cli.Run()
}
