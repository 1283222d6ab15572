// linkgate is a multi-tenant short-link gateway: per-tenant path-to-target
// mappings resolved into redirects, managed through an OAuth-backed admin
// API over a pluggable key-value store.
package main

import "github.com/khamel/linkgate/cmd/linkgate/cmd"

func main() {
	cmd.Execute()
}
