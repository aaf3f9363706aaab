package main

import "github.com/user/crmassist/cmd"

func main() {
	cmd.Execute()
}
