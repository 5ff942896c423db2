package main

import (
	"github.com/oncopredict/oncopredict/pkg/cli"
)

func main() {
	cli.Execute()
}
