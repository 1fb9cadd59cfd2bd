package main

import "formosa/cmd"

func main() {
	cmd.Execute()
}
