// Package parser turns selector expressions of the form
//
//	<css-path>[@<attribute>][|<filter>[:<args>]]*
//
// into structured specs.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// AttrText selects the text content of the match. It is the default.
	AttrText = "text"
	// AttrHTML selects the inner HTML of the match.
	AttrHTML = "html"
)

var (
	selectorPattern = regexp.MustCompile(`^([^@]*)(?:@\s*([\w\-:]+))?$`)
	numberPattern   = regexp.MustCompile(`^[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?$`)
)

// Spec is a parsed selector expression.
type Spec struct {
	Path      string
	Attribute string
	Filters   []FilterCall
}

// FilterCall is one named filter invocation with its literal arguments.
// Arguments are strings, ints or float64s.
type FilterCall struct {
	Name string
	Args []any
}

// Attr returns the attribute to read, defaulting to text.
func (s Spec) Attr() string {
	if s.Attribute == "" {
		return AttrText
	}
	return s.Attribute
}

// String serializes the spec back into selector syntax. Parsing the result
// yields an equal Spec.
func (s Spec) String() string {
	var b strings.Builder
	b.WriteString(s.Path)
	if s.Attribute != "" {
		b.WriteString("@")
		b.WriteString(s.Attribute)
	}
	for _, f := range s.Filters {
		b.WriteString(" | ")
		b.WriteString(f.Name)
		if len(f.Args) == 0 {
			continue
		}
		b.WriteString(":")
		for _, arg := range f.Args {
			b.WriteString(" ")
			b.WriteString(formatArg(arg))
		}
	}
	return b.String()
}

// ParseError reports malformed selector or filter syntax.
type ParseError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse selector %q at %d: %s", e.Input, e.Pos, e.Msg)
}

// Parse parses a selector expression.
func Parse(input string) (Spec, error) {
	head, tail, split := splitHead(input)

	m := selectorPattern.FindStringSubmatch(strings.TrimSpace(head))
	if m == nil {
		return Spec{}, &ParseError{Input: input, Pos: 0, Msg: "malformed selector"}
	}

	spec := Spec{
		Path:      strings.TrimSpace(m[1]),
		Attribute: m[2],
	}
	if split < 0 {
		return spec, nil
	}

	filters, err := parseFilters(input, tail, split+1)
	if err != nil {
		return Spec{}, err
	}
	spec.Filters = filters
	return spec, nil
}

// splitHead cuts input at the first filter bar. A bar inside quotes or
// brackets, or one followed by "=" (the |= attribute operator), does not
// start the filter list. split is the byte offset of the bar or -1.
func splitHead(input string) (head, tail string, split int) {
	var quote byte
	depth := 0
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			if depth > 0 {
				depth--
			}
		case c == '|' && depth == 0:
			if i+1 < len(input) && input[i+1] == '=' {
				continue
			}
			return input[:i], input[i+1:], i
		}
	}
	return input, "", -1
}

func parseFilters(input, tail string, offset int) ([]FilterCall, error) {
	var (
		calls []FilterCall
		quote byte
		start int
	)
	flush := func(end int) error {
		call, err := parseFilter(input, tail[start:end], offset+start)
		if err != nil {
			return err
		}
		calls = append(calls, call)
		return nil
	}

	for i := 0; i < len(tail); i++ {
		c := tail[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '|':
			if err := flush(i); err != nil {
				return nil, err
			}
			start = i + 1
		}
	}
	if quote != 0 {
		return nil, &ParseError{Input: input, Pos: len(input), Msg: "unterminated quoted argument"}
	}
	if err := flush(len(tail)); err != nil {
		return nil, err
	}
	return calls, nil
}

func parseFilter(input, segment string, pos int) (FilterCall, error) {
	name, rest, hasArgs := strings.Cut(segment, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return FilterCall{}, &ParseError{Input: input, Pos: pos, Msg: "empty filter name"}
	}
	if strings.ContainsAny(name, " \t\"'") {
		return FilterCall{}, &ParseError{Input: input, Pos: pos, Msg: fmt.Sprintf("invalid filter name %q", name)}
	}

	call := FilterCall{Name: name, Args: []any{}}
	if !hasArgs {
		return call, nil
	}
	args, err := parseArgs(input, rest, pos+len(segment)-len(rest))
	if err != nil {
		return FilterCall{}, err
	}
	call.Args = args
	return call, nil
}

// parseArgs splits an argument list on whitespace and commas. Quoted tokens
// keep their inner whitespace and are always strings; bare numeric tokens
// become ints or float64s.
func parseArgs(input, s string, pos int) ([]any, error) {
	args := []any{}
	i := 0
	for i < len(s) {
		c := s[i]
		if c == ' ' || c == '\t' || c == ',' || c == '\n' {
			i++
			continue
		}

		if c == '"' || c == '\'' {
			var b strings.Builder
			j := i + 1
			closed := false
			for j < len(s) {
				if s[j] == '\\' && j+1 < len(s) {
					b.WriteByte(s[j+1])
					j += 2
					continue
				}
				if s[j] == c {
					closed = true
					break
				}
				b.WriteByte(s[j])
				j++
			}
			if !closed {
				return nil, &ParseError{Input: input, Pos: pos + i, Msg: "unterminated quoted argument"}
			}
			if j+1 < len(s) && !isSeparator(s[j+1]) {
				return nil, &ParseError{Input: input, Pos: pos + j + 1, Msg: "unexpected character after quoted argument"}
			}
			args = append(args, b.String())
			i = j + 1
			continue
		}

		j := i
		for j < len(s) && !isSeparator(s[j]) {
			if s[j] == '"' || s[j] == '\'' {
				return nil, &ParseError{Input: input, Pos: pos + j, Msg: "unexpected quote inside bare argument"}
			}
			j++
		}
		args = append(args, coerce(s[i:j]))
		i = j
	}
	return args, nil
}

func isSeparator(c byte) bool {
	return c == ' ' || c == '\t' || c == ',' || c == '\n'
}

func coerce(token string) any {
	if !numberPattern.MatchString(token) {
		return token
	}
	if n, err := strconv.Atoi(token); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f
	}
	return token
}

func formatArg(arg any) string {
	switch v := arg.(type) {
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		if v != "" && !numberPattern.MatchString(v) && !strings.ContainsAny(v, " \t\n,|\"'\\") {
			return v
		}
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
		return `"` + r.Replace(v) + `"`
	default:
		return fmt.Sprint(v)
	}
}
