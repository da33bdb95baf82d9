package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseArg converts a command-line argument into a bind value.
//
//	i:42      int64
//	f:1.5     float64
//	b:true    bool
//	s:text    string (use it for text that starts with a prefix or is "null")
//	null      NULL
//
// Anything else binds as a string.
func ParseArg(s string) (any, error) {
	if s == "null" {
		return nil, nil
	}
	prefix, rest, ok := strings.Cut(s, ":")
	if !ok {
		return s, nil
	}
	switch prefix {
	case "i":
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", s, err)
		}
		return n, nil
	case "f":
		f, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", s, err)
		}
		return f, nil
	case "b":
		b, err := strconv.ParseBool(rest)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", s, err)
		}
		return b, nil
	case "s":
		return rest, nil
	}
	return s, nil
}

// ParseArgs converts every argument with ParseArg.
func ParseArgs(in []string) ([]any, error) {
	out := make([]any, 0, len(in))
	for _, s := range in {
		v, err := ParseArg(s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
