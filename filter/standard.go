package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var numericPattern = regexp.MustCompile(`[-+]?\d[\d,]*(?:\.\d+)?|[-+]?\.\d+`)

// Standard returns the built-in filters. Each call returns a fresh table that
// callers may extend.
func Standard() Table {
	return Table{
		"trim":      stringFilter(strings.TrimSpace),
		"lowercase": stringFilter(strings.ToLower),
		"uppercase": stringFilter(strings.ToUpper),
		"reverse":   stringFilter(reverse),
		"squash":    stringFilter(squash),
		"slice":     slice,
		"replace":   replace,
		"split":     split,
		"int":       toInt,
		"float":     toFloat,
	}
}

// stringFilter lifts a string transform into a Func. Non-string values pass
// through untouched.
func stringFilter(fn func(string) string) Func {
	return func(value any, _ ...any) (any, error) {
		s, ok := value.(string)
		if !ok {
			return value, nil
		}
		return fn(s), nil
	}
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// squash collapses whitespace runs into single spaces.
func squash(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// slice keeps runes [start:end]. Negative bounds count from the end.
func slice(value any, args ...any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("requires a start index")
	}
	runes := []rune(s)
	start, err := intArg(args[0])
	if err != nil {
		return nil, err
	}
	end := len(runes)
	if len(args) > 1 {
		if end, err = intArg(args[1]); err != nil {
			return nil, err
		}
	}
	start, end = clampIndex(start, len(runes)), clampIndex(end, len(runes))
	if start >= end {
		return "", nil
	}
	return string(runes[start:end]), nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	return max(0, min(i, n))
}

func replace(value any, args ...any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("requires old and new arguments, got %d", len(args))
	}
	return strings.ReplaceAll(s, fmt.Sprint(args[0]), fmt.Sprint(args[1])), nil
}

// split breaks a string on a separator (default ",") and trims each part.
func split(value any, args ...any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	sep := ","
	if len(args) > 0 {
		sep = fmt.Sprint(args[0])
	}
	parts := strings.Split(s, sep)
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// toInt extracts the first number in a string such as "In stock (22 available)".
func toInt(value any, _ ...any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case string:
		f, err := firstNumber(v)
		if err != nil {
			return nil, err
		}
		return int(f), nil
	default:
		return value, nil
	}
}

// toFloat extracts the first number in a string such as "£51.77".
func toFloat(value any, _ ...any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		return firstNumber(v)
	default:
		return value, nil
	}
}

func firstNumber(s string) (float64, error) {
	match := numericPattern.FindString(s)
	if match == "" {
		return 0, fmt.Errorf("no number in %q", s)
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", match, err)
	}
	return f, nil
}

func intArg(arg any) (int, error) {
	switch v := arg.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid index %q", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("invalid index %v", arg)
	}
}
