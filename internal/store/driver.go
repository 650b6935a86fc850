package store

import (
	"database/sql"
	"regexp"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/orb-framework/orb-sub002/internal/query"
	"github.com/orb-framework/orb-sub002/internal/querysql"
)

// DriverName is the database/sql driver with the orb SQL functions.
const DriverName = "sqlite3_orb"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(querysql.MatchFunc, matchFunc, true)
		},
	})
}

type patternKey struct {
	pattern       string
	caseSensitive bool
}

// patterns caches compiled patterns; a nil entry records a bad pattern.
var patterns sync.Map

// matchFunc implements orb_match(pattern, text, case_sensitive). It
// returns 1 or 0, or NULL when either argument is not text or the pattern
// does not compile, so neither Matches nor DoesNotMatch holds.
func matchFunc(pattern, text any, caseSensitive int64) any {
	p, ok := asText(pattern)
	if !ok {
		return nil
	}
	s, ok := asText(text)
	if !ok {
		return nil
	}

	key := patternKey{pattern: p, caseSensitive: caseSensitive != 0}
	cached, ok := patterns.Load(key)
	if !ok {
		re, err := query.CompilePattern(p, key.caseSensitive)
		if err != nil {
			re = nil
		}
		cached, _ = patterns.LoadOrStore(key, re)
	}
	re := cached.(*regexp.Regexp)
	if re == nil {
		return nil
	}
	if re.MatchString(s) {
		return int64(1)
	}
	return int64(0)
}

func asText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}
