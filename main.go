package main

import "github.com/jhunt/legisync/cmd"

func main() {
	cmd.Execute()
}
