package main

import "github.com/vibast-solutions/ms-go-mailtasks/cmd"

func main() {
	cmd.Execute()
}
