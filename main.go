package main

import "github.com/Mohsinsiddi/w3fund/cmd"

func main() {
	cmd.Execute()
}
