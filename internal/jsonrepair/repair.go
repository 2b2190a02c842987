package jsonrepair

import (
	"encoding/json"
	"errors"
	"strings"
)

// maxRepairAttempts bounds how many shortened candidates repair parses.
const maxRepairAttempts = 64

// scanState is the result of walking a document up to its end.
type scanState struct {
	inString bool
	stack    []byte // open '[' and '{' in order
	// cuts are offsets of commas and opening brackets outside strings; a
	// truncated document can be shortened to any of them.
	cuts []int
}

func scan(text string) scanState {
	var st scanState
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if st.inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				st.inString = false
			}
			continue
		}
		switch c {
		case '"':
			st.inString = true
		case '[', '{':
			st.stack = append(st.stack, c)
			st.cuts = append(st.cuts, i)
		case ']', '}':
			if n := len(st.stack); n > 0 {
				st.stack = st.stack[:n-1]
			}
		case ',':
			st.cuts = append(st.cuts, i)
		}
	}
	return st
}

// ClosingSuffix returns the minimal text that terminates an open string and
// closes every open bracket in LIFO order. It is empty for balanced input.
func ClosingSuffix(text string) string {
	return closingSuffix(scan(text))
}

func closingSuffix(st scanState) string {
	var b strings.Builder
	if st.inString {
		b.WriteByte('"')
	}
	for i := len(st.stack) - 1; i >= 0; i-- {
		if st.stack[i] == '[' {
			b.WriteByte(']')
		} else {
			b.WriteByte('}')
		}
	}
	return b.String()
}

// repair completes a truncated document. The minimal closing suffix is tried
// first; if the result still does not parse (the cut fell between a key and
// its value, say) the text is shortened to the previous comma or opening
// bracket and closed again, so the recovered elements are always a prefix of
// the intended ones. A syntax error inside the kept text rules out every cut
// after it.
func repair(text string) (any, bool) {
	st := scan(text)
	if !st.inString && len(st.stack) == 0 {
		return nil, false
	}

	candidate := text
	cuts := st.cuts
	for attempt := 0; attempt < maxRepairAttempts; attempt++ {
		fixed, removed := removeTrailingCommas(candidate + closingSuffix(scan(candidate)))
		v, err := parseErr(fixed)
		if err == nil {
			return v, true
		}
		if pos, ok := errorOffset(err, removed); ok && pos < len(candidate) {
			for len(cuts) > 0 && cuts[len(cuts)-1] > pos {
				cuts = cuts[:len(cuts)-1]
			}
		}
		if len(cuts) == 0 {
			return nil, false
		}
		cut := cuts[len(cuts)-1]
		cuts = cuts[:len(cuts)-1]
		if cut >= len(candidate) {
			continue
		}
		if candidate[cut] == ',' {
			candidate = candidate[:cut]
		} else {
			// drop the unfinished container itself
			candidate = strings.TrimRight(candidate[:cut], " \t\r\n,")
		}
		if strings.TrimSpace(candidate) == "" {
			return nil, false
		}
	}
	return nil, false
}

// errorOffset maps the offending byte of a syntax error in a comma-stripped
// document back to its offset in the original text.
func errorOffset(err error, removed []int) (int, bool) {
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) || syntaxErr.Offset <= 0 {
		return 0, false
	}
	pos := int(syntaxErr.Offset) - 1
	for _, r := range removed {
		if r > pos {
			break
		}
		pos++
	}
	return pos, true
}
