package main

import "fluxa/cli"

func main() {
	cli.Execute()
}
