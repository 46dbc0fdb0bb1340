package main

import "github.com/xiaot623/gogo/negotiator/internal/cli"

func main() {
	cli.Execute()
}
