package main

import "github.com/tech-arch1tect/walletauth/cmd/walletauth/cmd"

func main() {
	cmd.Execute()
}
