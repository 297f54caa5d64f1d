package main

import "github.com/mdsync/mdsync/cmd"

func main() {
	cmd.Execute()
}
