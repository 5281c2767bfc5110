// Package identity normalizes the client key that addresses one contact.
//
// The remote service sends the key as a JSON string on some paths and as a
// JSON number on others. A Key is parsed once on ingress and compared with
// Equivalent everywhere else.
package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MaxExtractedKey bounds keys recovered from digit runs in dirty input.
const MaxExtractedKey = 999999999

type Key struct {
	raw     string
	num     int64
	numeric bool
	quoted  bool
}

// Parse trims raw and records its integer form when the whole text is an integer.
func Parse(raw string) Key {
	raw = strings.TrimSpace(raw)
	k := Key{raw: raw, quoted: true}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		k.num = n
		k.numeric = true
	}
	return k
}

func FromInt(n int64) Key {
	return Key{raw: strconv.FormatInt(n, 10), num: n, numeric: true}
}

// Of converts the loosely typed values found in decoded JSON into a Key.
func Of(v any) Key {
	switch value := v.(type) {
	case nil:
		return Key{}
	case Key:
		return value
	case string:
		return Parse(value)
	case json.Number:
		k := Parse(value.String())
		k.quoted = false
		return k
	case int:
		return FromInt(int64(value))
	case int32:
		return FromInt(int64(value))
	case int64:
		return FromInt(value)
	case float64:
		if value == float64(int64(value)) {
			return FromInt(int64(value))
		}
		return Key{raw: strconv.FormatFloat(value, 'f', -1, 64)}
	default:
		return Parse(fmt.Sprint(value))
	}
}

func (k Key) String() string {
	return k.raw
}

func (k Key) IsZero() bool {
	return k.raw == ""
}

// Int returns the integer form of the key, if the whole key is an integer.
func (k Key) Int() (int64, bool) {
	return k.num, k.numeric
}

// Quoted reports whether the key arrived as a JSON string.
func (k Key) Quoted() bool {
	return k.quoted
}

// Forms lists the distinct representations a marker map may hold for this key.
func (k Key) Forms() []string {
	if k.IsZero() {
		return nil
	}
	forms := []string{k.raw}
	if k.numeric {
		if canonical := strconv.FormatInt(k.num, 10); canonical != k.raw {
			forms = append(forms, canonical)
		}
	}
	return forms
}

// Equivalent reports whether a and b address the same contact: exact equality,
// equality of the string forms, or equality of the numeric forms.
func Equivalent(a, b Key) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	if a == b {
		return true
	}
	if a.raw == b.raw {
		return true
	}
	return a.numeric && b.numeric && a.num == b.num
}

func (k Key) MarshalJSON() ([]byte, error) {
	if k.numeric && !k.quoted {
		return []byte(strconv.FormatInt(k.num, 10)), nil
	}
	return json.Marshal(k.raw)
}

func (k *Key) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*k = Key{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = Parse(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identity key must be a string or number: %w", err)
	}
	*k = Of(n)
	return nil
}

// Resolve turns a raw, possibly dirty, key into a positive integer identity.
// The leading integer of raw is tried first ("12-34" is 12). When there is
// none, or it is not positive, the longest digit run is used when it falls
// inside (0, MaxExtractedKey). Ties between runs of equal length go to the
// later run.
func Resolve(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if n, ok := leadingInt(raw); ok && n > 0 {
		return n, true
	}
	longest := ""
	start := -1
	for i := 0; i <= len(raw); i++ {
		isDigit := i < len(raw) && raw[i] >= '0' && raw[i] <= '9'
		if isDigit && start < 0 {
			start = i
			continue
		}
		if !isDigit && start >= 0 {
			if run := raw[start:i]; len(run) >= len(longest) {
				longest = run
			}
			start = -1
		}
	}
	if longest == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(longest, 10, 64)
	if err != nil || n <= 0 || n >= MaxExtractedKey {
		return 0, false
	}
	return n, true
}

// leadingInt parses an optional sign followed by the digits at the start of s.
func leadingInt(s string) (int64, bool) {
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
