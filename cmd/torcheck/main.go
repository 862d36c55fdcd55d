// Package main provides the torcheck CLI.
//
// torcheck asks check.torproject.org whether traffic sent through a Tor
// SOCKS proxy really leaves through the Tor network.
//
// Usage:
//
//	torcheck check
//	torcheck check --external-tor 127.0.0.1:9050 --method api
//	torcheck history
//
// See --help for all available options.
package main

func main() {
	Execute()
}
