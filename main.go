package main

import "github.com/frahmantamala/payapp/cmd"

func main() {
	cmd.Execute()
}
