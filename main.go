package main

import "github.com/nextlevelbuilder/showroombot/cmd"

func main() {
	cmd.Execute()
}
