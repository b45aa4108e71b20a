package main

import "flag"

// main is a wrapper to enable us to put the interesting stuff in the rest of
// the package.
func main() {
	flag.Parse()
	Run(nil)
}
