// Package main is the entry point for the traits CLI.
package main

func main() {
	Execute()
}
