package main

import "github.com/kmercer/salewatch/cmd"

func main() {
	cmd.Execute()
}
