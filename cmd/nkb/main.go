package main

import "nkb/internal/nkb"

func main() {
	nkb.Main()
}
