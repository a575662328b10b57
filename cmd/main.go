package main

import (
	cmd "github.com/kerbaras/audiobooks/cmd/audiobooks"
)

func main() {
	cmd.Execute()
}
