// Command pg-embed downloads PostgreSQL binaries and runs a disposable server.
package main

import "github.com/oshokin/pg-embed/cmd/pg-embed/cmd"

func main() {
	cmd.Execute()
}
