//go:build tools
// +build tools

package main

import (
	_ "github.com/gobuffalo/packr"
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "github.com/mattn/goveralls"
	_ "golang.org/x/tools/cmd/cover"
)
