package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RawEvent is one extracted policy event exactly as the model returned it,
// before enrichment attaches identifiers, snapshots, and embeddings.
type RawEvent struct {
	Text    string   `json:"text"`
	Topics  []string `json:"topics"`
	Tags    []string `json:"tags"`
	Summary string   `json:"summary"`
	Title   string   `json:"title"`
}

// eventArraySchema is the contract the model output must satisfy: a JSON
// array of objects carrying the five extraction fields with the right
// types. An empty array is valid output for a bill with no events.
const eventArraySchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"text": {"type": "string"},
			"topics": {"type": "array", "items": {"type": "string"}},
			"tags": {"type": "array", "items": {"type": "string"}},
			"summary": {"type": "string"},
			"title": {"type": "string"}
		},
		"required": ["text", "topics", "tags", "summary", "title"]
	}
}`

// EventDecoder parses and validates raw model output into events. The
// schema is compiled once at construction.
type EventDecoder struct {
	schema *jsonschema.Schema
}

// NewEventDecoder creates an EventDecoder with the event array schema
// compiled.
func NewEventDecoder() (*EventDecoder, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("events.json", strings.NewReader(eventArraySchema)); err != nil {
		return nil, fmt.Errorf("failed to add event schema resource: %w", err)
	}

	schema, err := compiler.Compile("events.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile event schema: %w", err)
	}

	return &EventDecoder{schema: schema}, nil
}

// Decode parses one record's model output into raw events. The assistant
// turn was pre-seeded with the array's opening bracket, which the provider
// does not echo back, so it is prepended before parsing.
func (d *EventDecoder) Decode(output string) ([]RawEvent, error) {
	payload := assistantPrefill + output

	var untyped interface{}
	if err := json.Unmarshal([]byte(payload), &untyped); err != nil {
		return nil, fmt.Errorf("model output is not valid JSON: %w", err)
	}

	if err := d.schema.Validate(untyped); err != nil {
		return nil, fmt.Errorf("model output failed schema validation: %w", err)
	}

	var events []RawEvent
	if err := json.Unmarshal([]byte(payload), &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}
