// Package main serves as the entry point for the billevents application.
// It extracts structured policy events from legislative bill text using
// asynchronous LLM inference batches, enriches them with embeddings, and
// persists them for downstream search.
package main

import "billevents/cmd"

func main() {
	cmd.Execute()
}
