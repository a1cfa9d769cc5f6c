package query

import (
	"reflect"
	"regexp"
	"strings"
	"sync"
)

// matches reports whether doc satisfies filter, walking $and/$or trees
// and delegating leaf clauses to matchesField. $where is accepted
// (§4.6/§4.7 gate it earlier) but cannot be evaluated without a
// JavaScript engine; a real networked store would run it server-side,
// so here it passes unconditionally rather than silently misreporting.
func (e *Engine) matches(doc map[string]any, filter map[string]any) bool {
	for k, v := range filter {
		switch k {
		case "$and":
			arr, _ := v.([]any)
			for _, sub := range arr {
				m, ok := sub.(map[string]any)
				if !ok || !e.matches(doc, m) {
					return false
				}
			}
		case "$or":
			arr, _ := v.([]any)
			matched := false
			for _, sub := range arr {
				m, ok := sub.(map[string]any)
				if ok && e.matches(doc, m) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		case "$where":
			continue
		default:
			val, present := doc[k]
			if !e.matchesField(val, present, v) {
				return false
			}
		}
	}
	return true
}

func (e *Engine) matchesField(fieldVal any, present bool, clause any) bool {
	m, ok := clause.(map[string]any)
	if !ok {
		return deepEqual(fieldVal, clause)
	}
	for op, v := range m {
		switch op {
		case "$eq":
			if !deepEqual(fieldVal, v) {
				return false
			}
		case "$ne":
			if deepEqual(fieldVal, v) {
				return false
			}
		case "$in":
			arr, _ := v.([]any)
			found := false
			for _, item := range arr {
				if deepEqual(fieldVal, item) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case "$nin":
			arr, _ := v.([]any)
			for _, item := range arr {
				if deepEqual(fieldVal, item) {
					return false
				}
			}
		case "$exists":
			want, _ := v.(bool)
			if present != want {
				return false
			}
		case "$gt":
			c, ok := compareOrdered(fieldVal, v)
			if !ok || c <= 0 {
				return false
			}
		case "$gte":
			c, ok := compareOrdered(fieldVal, v)
			if !ok || c < 0 {
				return false
			}
		case "$lt":
			c, ok := compareOrdered(fieldVal, v)
			if !ok || c >= 0 {
				return false
			}
		case "$lte":
			c, ok := compareOrdered(fieldVal, v)
			if !ok || c > 0 {
				return false
			}
		case "$size":
			arr, isArr := fieldVal.([]any)
			n, isNum := toInt(v)
			if !isArr || !isNum || len(arr) != n {
				return false
			}
		case "$regex":
			s, isStr := fieldVal.(string)
			pattern, _ := v.(string)
			re, err := e.compileRegex(pattern)
			if !isStr || err != nil || !re.MatchString(s) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func deepEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

// compareOrdered returns (-1, 0, 1, true) when a and b are ordered
// comparably (both numeric, or both strings), else (0, false).
func compareOrdered(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// regexCache memoizes compiled patterns per Engine, mirroring the cost
// of compiling a $regex clause once per query rather than once per
// scanned document.
type regexCache struct {
	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

func (e *Engine) compileRegex(pattern string) (*regexp.Regexp, error) {
	e.regexes.mu.Lock()
	defer e.regexes.mu.Unlock()
	if e.regexes.cache == nil {
		e.regexes.cache = make(map[string]*regexp.Regexp)
	}
	if re, ok := e.regexes.cache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	e.regexes.cache[pattern] = re
	return re, nil
}
