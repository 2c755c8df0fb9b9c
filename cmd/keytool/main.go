package main

import (
	"os"

	"github.com/nickk-eng/Serialboxd/internal/keytool"
)

func main() {
	os.Exit(keytool.Run(os.Args[1:], os.Stdout, os.Stderr))
}
