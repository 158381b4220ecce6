package main

import "github.com/goplus/gmxbuild/cmd/gmxbuild/internal"

func main() {
	internal.Execute()
}
