package main

import "github.com/edgeflare/pumpdemo/cmd/pumpdemo"

func main() {
	pumpdemo.Main()
}
