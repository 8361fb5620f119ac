package main

import (
	"fmt"
	"os"

	"github.com/avlsec/solanalyzer/cmd"
)

var osExit = os.Exit

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}
