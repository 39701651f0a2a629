package main

import "natmod/internal/natmod"

func main() {
	natmod.Main()
}
