// Assetrev revisions static assets and keeps a manifest of their
// content-addressed names.
package main

import "github.com/albertocavalcante/assetrev/cmd/assetrev/internal/cli"

func main() {
	cli.Execute()
}
