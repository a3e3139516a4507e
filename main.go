package main

import "github.com/rlink-io/rlink/cmd"

func main() {
	cmd.Execute()
}
