// Package main provides the netsim command-line interface for network simulation
package main

func main() {
	Execute()
}
