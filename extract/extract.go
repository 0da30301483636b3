// Package extract turns unreliable free-text model replies into structured field maps.
//
// A reply is run through an ordered cascade of strategies. The first three locate a
// candidate JSON object (a json-tagged fenced block, a quote-aware balanced brace scan,
// a greedy first-brace-to-last-brace match) and decode it. The fourth recovers fields
// one by one with regular expressions. The first strategy that yields a required field
// wins. Extraction never fails with an error: a reply nothing can interpret comes back
// tagged MethodFailed.
package extract

import (
	"fmt"
	"strings"
)

// Method identifies the cascade strategy that produced a Result.
type Method string

// Cascade strategy tags, in the order they are attempted.
const (
	MethodFencedBlock    Method = "fenced-block"
	MethodBraceMatched   Method = "brace-matched"
	MethodGreedyMatch    Method = "greedy-match"
	MethodFieldRecovered Method = "field-recovered"
	MethodFailed         Method = "failed"
)

// Kind describes how a field value is recovered and coerced.
type Kind int

const (
	// KindScalar is a short value that may arrive as a string or a number.
	KindScalar Kind = iota
	// KindText is free prose.
	KindText
	// KindBool is a true/false flag.
	KindBool
	// KindList is a list of strings.
	KindList
)

// Field describes one expected field of a reply.
type Field struct {
	// Name is the canonical key used in Result.Fields.
	Name string

	Kind Kind

	// Aliases are alternative JSON keys the model may use for this field.
	Aliases []string

	// Labels are plain-text headings ("Grade", "Student Feedback") used by
	// field-level recovery when the reply is not JSON at all.
	Labels []string

	// ValuePattern restricts what a plain-text label match may capture for
	// KindScalar fields. Defaults to a single non-space token.
	ValuePattern string

	// Required marks the fields whose presence makes a decoded object acceptable.
	Required bool
}

// keys returns the canonical name followed by the aliases, lowercased.
func (f Field) keys() []string {
	keys := make([]string, 0, len(f.Aliases)+1)
	keys = append(keys, strings.ToLower(f.Name))
	for _, a := range f.Aliases {
		keys = append(keys, strings.ToLower(a))
	}
	return keys
}

// Schema is the set of fields a caller expects in a reply.
type Schema struct {
	Fields []Field

	// Terminators are extra plain-text headings that end a recovered text
	// section without being fields themselves.
	Terminators []string
}

// canonical maps a decoded key to the schema field name it belongs to.
func (s Schema) canonical(key string) (string, bool) {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, f := range s.Fields {
		for _, candidate := range f.keys() {
			if k == candidate {
				return f.Name, true
			}
		}
	}
	return "", false
}

// hasRequired reports whether fields contains a non-empty value for any required field.
func (s Schema) hasRequired(fields map[string]any) bool {
	for _, f := range s.Fields {
		if !f.Required {
			continue
		}
		if v, ok := fields[f.Name]; ok && v != nil {
			if str, isStr := v.(string); isStr && strings.TrimSpace(str) == "" {
				continue
			}
			return true
		}
	}
	return false
}

// Attempt records one strategy that was tried and why it did not win.
type Attempt struct {
	Method Method
	Reason string
}

// Result is the outcome of running the cascade over one reply.
type Result struct {
	// Fields holds decoded values keyed by canonical field name. Keys that are
	// not part of the schema are kept under their original spelling.
	Fields map[string]any

	// Method is the strategy that produced Fields, or MethodFailed.
	Method Method

	// Attempts lists the strategies that were tried before Method, in order.
	Attempts []Attempt
}

// OK reports whether any strategy produced a usable record.
func (r Result) OK() bool {
	return r.Method != MethodFailed
}

// Strategy is one step of the cascade. Run returns the fields it could read
// from raw, or an error describing why it could not.
type Strategy struct {
	Method Method
	Run    func(raw string, schema Schema) (map[string]any, error)
}

// Cascade is the ordered list of strategies used by Extract.
var Cascade = []Strategy{
	{Method: MethodFencedBlock, Run: decodeWith(fencedBlocks)},
	{Method: MethodBraceMatched, Run: decodeWith(balancedObjects)},
	{Method: MethodGreedyMatch, Run: decodeWith(greedyObject)},
	{Method: MethodFieldRecovered, Run: recoverFields},
}

// Extract runs the cascade over raw and returns the first success.
func Extract(raw string, schema Schema) Result {
	return Run(Cascade, raw, schema)
}

// Run runs the given strategies in order. A panic inside a strategy counts as
// that strategy failing; later strategies are still attempted.
func Run(strategies []Strategy, raw string, schema Schema) Result {
	res := Result{Method: MethodFailed}
	for _, s := range strategies {
		fields, err := runStrategy(s, raw, schema)
		if err != nil {
			res.Attempts = append(res.Attempts, Attempt{Method: s.Method, Reason: err.Error()})
			continue
		}
		res.Fields = fields
		res.Method = s.Method
		return res
	}
	return res
}

func runStrategy(s Strategy, raw string, schema Schema) (fields map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			fields = nil
			err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("empty input")
	}
	return s.Run(raw, schema)
}

// LooksStructured reports whether s reads like a serialized object rather
// than prose, e.g. a whole reply that was dumped into a feedback field.
func LooksStructured(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return false
	}
	if strings.HasPrefix(t, "```") {
		return true
	}
	if (strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[")) && strings.Contains(t, `":`) {
		return true
	}
	return false
}
