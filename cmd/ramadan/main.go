package main

import "ramadan-companion/internal/cli"

func main() {
	cli.Execute()
}
