package main

import "github.com/fakeyudi/playground/cmd"

func main() {
	cmd.Execute()
}
