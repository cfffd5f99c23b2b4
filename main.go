package main

import "github.com/yukimura/gminor/cmd"

func main() {
	cmd.Execute()
}
