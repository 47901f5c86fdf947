package main

import "github.com/oshokin/bundle-updater/cmd/bundle-updater/cmd"

func main() {
	cmd.Execute()
}
