package main

import "github.com/virtualsteve-star/stinger-sub004/cmd/stinger/cmd"

func main() {
	cmd.Execute()
}
