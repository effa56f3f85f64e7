package main

import "github.com/jmehdipour/scrum-callbot/cmd"

func main() {
	cmd.Execute()
}
