/*
Copyright 2025 KCSC Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package jsonrepair recovers structured data from quasi-JSON payloads as
// emitted by some POS terminals: single-quoted strings, unquoted object
// keys, Python-style literals. Parsing is an ordered chain of pure
// strategies, short-circuiting on the first success; unrecoverable garbage
// yields no result rather than an error.
package jsonrepair

import (
	"bytes"
	"encoding/json"
	"unicode"
)

// strategy attempts one way of reading the payload.
type strategy func(data []byte) (interface{}, bool)

// Parse runs the strategy chain: strict JSON, quote normalization, literal
// normalization, and finally balanced-bracket extraction with the same
// chain applied to the extracted fragment.
func Parse(data []byte) (interface{}, bool) {
	for _, s := range []strategy{parseStrict, parseNormalizedQuotes, parseNormalizedLiterals, parseExtracted} {
		if v, ok := s(data); ok {
			return v, true
		}
	}
	return nil, false
}

// parseStrict is plain JSON decoding. Numbers are kept as json.Number so
// re-encoding preserves the source's decimal representation.
func parseStrict(data []byte) (interface{}, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	// Trailing garbage after a valid value means this was not the payload.
	if _, err := dec.Token(); err == nil {
		return nil, false
	}
	return v, v != nil
}

func parseNormalizedQuotes(data []byte) (interface{}, bool) {
	return parseStrict(normalizeQuotes(data))
}

func parseNormalizedLiterals(data []byte) (interface{}, bool) {
	return parseStrict(normalizeLiterals(normalizeQuotes(data)))
}

// parseExtracted pulls the first balanced {...} or [...] out of surrounding
// noise and replays the chain on the fragment.
func parseExtracted(data []byte) (interface{}, bool) {
	fragment, ok := extractBalanced(data)
	if !ok {
		return nil, false
	}
	for _, s := range []strategy{parseStrict, parseNormalizedQuotes, parseNormalizedLiterals} {
		if v, ok := s(fragment); ok {
			return v, true
		}
	}
	return nil, false
}

// normalizeQuotes rewrites single-quoted strings to double-quoted ones and
// wraps bare object keys in quotes. It walks the input with a small string
// state machine so quote characters inside strings survive.
func normalizeQuotes(data []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(data) + 16)

	inString := false
	quote := byte(0)
	escaped := false

	for i := 0; i < len(data); i++ {
		c := data[i]

		if inString {
			if escaped {
				// \' has no meaning in JSON; unescape it inside converted strings
				if c == '\'' && quote == '\'' {
					out.Truncate(out.Len() - 1)
				}
				out.WriteByte(c)
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
				out.WriteByte(c)
			case quote:
				inString = false
				out.WriteByte('"')
			case '"':
				if quote == '\'' {
					out.WriteString(`\"`)
				} else {
					out.WriteByte(c)
				}
			default:
				out.WriteByte(c)
			}
			continue
		}

		switch {
		case c == '"' || c == '\'':
			inString = true
			quote = c
			out.WriteByte('"')
		case isIdentStart(c):
			j := i
			for j < len(data) && isIdentPart(data[j]) {
				j++
			}
			word := data[i:j]
			if nextNonSpace(data, j) == ':' && !isLiteralWord(word) {
				out.WriteByte('"')
				out.Write(word)
				out.WriteByte('"')
			} else {
				out.Write(word)
			}
			i = j - 1
		default:
			out.WriteByte(c)
		}
	}
	return out.Bytes()
}

// normalizeLiterals rewrites Python-style literals (True, False, None)
// outside of strings to their JSON forms.
func normalizeLiterals(data []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(data))

	inString := false
	escaped := false

	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out.WriteByte(c)
			continue
		}
		if isIdentStart(c) {
			j := i
			for j < len(data) && isIdentPart(data[j]) {
				j++
			}
			switch string(data[i:j]) {
			case "True":
				out.WriteString("true")
			case "False":
				out.WriteString("false")
			case "None":
				out.WriteString("null")
			default:
				out.Write(data[i:j])
			}
			i = j - 1
			continue
		}
		out.WriteByte(c)
	}
	return out.Bytes()
}

// extractBalanced returns the first balanced top-level object or array in
// data, respecting string boundaries for both quote styles.
func extractBalanced(data []byte) ([]byte, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(data); i++ {
		if data[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if data[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start == -1 {
		return nil, false
	}

	depth := 0
	inString := false
	quote := byte(0)
	escaped := false

	for i := start; i < len(data); i++ {
		c := data[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == quote {
				inString = false
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return data[start : i+1], true
			}
		}
	}
	return nil, false
}

func isIdentStart(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c))
}

func isIdentPart(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}

func isLiteralWord(word []byte) bool {
	switch string(word) {
	case "true", "false", "null", "True", "False", "None":
		return true
	}
	return false
}

func nextNonSpace(data []byte, from int) byte {
	for i := from; i < len(data); i++ {
		if !unicode.IsSpace(rune(data[i])) {
			return data[i]
		}
	}
	return 0
}
