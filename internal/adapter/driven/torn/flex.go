package torn

import (
	"bytes"
	"strconv"
	"strings"
)

// flexInt decodes a JSON number, numeric string or boolean. Anything else,
// null included, leaves it unset rather than failing the whole record.
type flexInt struct {
	v  int64
	ok bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	switch s {
	case "", "null":
		return nil
	case "true":
		f.v, f.ok = 1, true
		return nil
	case "false":
		f.v, f.ok = 0, true
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.v, f.ok = n, true
		return nil
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil {
		f.v, f.ok = int64(x), true
	}
	return nil
}

func (f flexInt) ptr() *int64 {
	if !f.ok {
		return nil
	}
	v := f.v
	return &v
}

// flexFloat is the float counterpart of flexInt.
type flexFloat struct {
	v  float64
	ok bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if x, err := strconv.ParseFloat(s, 64); err == nil {
		f.v, f.ok = x, true
	}
	return nil
}

// flexString decodes a JSON string or number as text.
type flexString struct {
	v  string
	ok bool
}

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return nil
		}
		f.v, f.ok = s, s != ""
		return nil
	}
	if b[0] == '{' || b[0] == '[' {
		return nil
	}
	f.v, f.ok = string(b), true
	return nil
}

func (f flexString) ptr() *string {
	if !f.ok {
		return nil
	}
	v := f.v
	return &v
}

func firstInt(vals ...flexInt) flexInt {
	for _, v := range vals {
		if v.ok {
			return v
		}
	}
	return flexInt{}
}

func firstFloat(vals ...flexFloat) flexFloat {
	for _, v := range vals {
		if v.ok {
			return v
		}
	}
	return flexFloat{}
}

func firstString(vals ...flexString) flexString {
	for _, v := range vals {
		if v.ok {
			return v
		}
	}
	return flexString{}
}

func floatOr(f flexFloat, def float64) float64 {
	if f.ok {
		return f.v
	}
	return def
}
