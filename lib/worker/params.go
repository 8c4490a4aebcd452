// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Params is a free-form parameter map from a worker spec or a task.
// Values arrive from JSON (numbers as float64) or CBOR (integers as
// int64 or uint64), so the accessors accept any numeric type and
// numeric strings.
type Params map[string]any

// String returns the value for key formatted as text, or fallback when
// it is absent or empty.
func (p Params) String(key, fallback string) string {
	value, present := p[key]
	if !present || value == nil {
		return fallback
	}
	text, isString := value.(string)
	if !isString {
		text = fmt.Sprint(value)
	}
	if text == "" {
		return fallback
	}
	return text
}

// Int returns the value for key as a positive integer. Missing,
// non-numeric, and non-positive values yield fallback.
func (p Params) Int(key string, fallback int) int {
	number, valid := toInt(p[key])
	if !valid || number <= 0 {
		return fallback
	}
	return number
}

// Milliseconds returns the value for key, a count of milliseconds, as
// a duration, with the same fallback rules as Int.
func (p Params) Milliseconds(key string, fallback time.Duration) time.Duration {
	return time.Duration(p.Int(key, int(fallback.Milliseconds()))) * time.Millisecond
}

func toInt(value any) (int, bool) {
	switch number := value.(type) {
	case int:
		return number, true
	case int64:
		return int(number), true
	case uint64:
		if number > math.MaxInt {
			return 0, false
		}
		return int(number), true
	case float64:
		if math.IsNaN(number) || math.IsInf(number, 0) {
			return 0, false
		}
		return int(number), true
	case string:
		parsed, err := strconv.Atoi(number)
		return parsed, err == nil
	}
	return 0, false
}
