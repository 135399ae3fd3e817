package main

import "github.com/trendscope/trendscope/cmd"

func main() {
	cmd.Execute()
}
