// The main package for the curatorscan executable.
package main

import "curatorscan/cmd"

func main() {
	cmd.Execute()
}
