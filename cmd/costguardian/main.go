package main

import "github.com/DrSkyle/costguardian/cmd/costguardian/commands"

func main() {
	commands.Execute()
}
