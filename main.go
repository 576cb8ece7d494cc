// Package main is the entry point for the stackpilot CLI, a deployment
// orchestrator that brings up a PostgreSQL-backed application stack
// (database, application, edge proxy, monitoring) on a Docker engine.
package main

import (
	"os"

	"github.com/stackpilot/stackpilot/cli"
)

func main() {
	os.Exit(cli.Execute())
}
