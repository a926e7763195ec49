package main

import "github.com/BioHazard786/solfa/cmd"

func main() {
	cmd.Execute()
}
