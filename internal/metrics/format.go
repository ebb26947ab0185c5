package metrics

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Stats maps metric names to values rounded to two decimals.
type Stats map[string]float64

// Seconds is an interval in seconds. It encodes with two decimals like Stats.
type Seconds float64

func (s Seconds) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(Round(float64(s)), 'f', 2, 64)), nil
}

// Format zips labels against values. A label of the form "name:idx" reads
// values[idx] instead of the positional value. Labels with no matching value
// are left out.
func Format(labels []string, values Derived) Stats {
	out := make(Stats, len(labels))
	for i, label := range labels {
		name, idx := label, i
		if n, pos, ok := strings.Cut(label, ":"); ok {
			j, err := strconv.Atoi(pos)
			if err != nil {
				continue
			}
			name, idx = n, j
		}
		if idx < 0 || idx >= len(values) {
			continue
		}
		out[name] = Round(values[idx])
	}
	return out
}

// Round rounds to two decimals. NaN and infinities become 0.
func Round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}

// MarshalJSON writes every value with exactly two decimals and the keys in
// sorted order.
func (s Stats) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(Round(s[k]), 'f', 2, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
