package main

import "chat-server/cmd"

func main() {
	cmd.Execute()
}
