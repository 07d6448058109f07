package main

import "github.com/jake-scott/nuki-checkin/cmd"

func main() {
	cmd.Execute()
}
