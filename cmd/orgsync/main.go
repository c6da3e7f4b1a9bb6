package main

import "orgsync/internal/cmd"

func main() {
	cmd.Execute()
}
