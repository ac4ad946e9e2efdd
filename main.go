package main

import (
	"github.com/xkilldash9x/rolecheck/cmd"
)

func main() {
	cmd.Execute()
}
