// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package expression

import (
	"path/filepath"
	"regexp"
	"strings"
)

// likeMatch implements SQL LIKE with '%' and '_' wildcards and no
// escape character, matching case-insensitively as MySQL-family engines
// do for non-binary collations.
func likeMatch(s, pattern string) bool {
	re := likeToRegexp(pattern)
	return re.MatchString(s)
}

func likeToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return regexp.MustCompile("$^") // matches nothing
	}
	return re
}

// globMatch implements GLOB using shell-style wildcards (case
// sensitive), following SQLite's convention of reusing filesystem glob
// semantics for '*' and '?'.
func globMatch(s, pattern string) bool {
	ok, err := filepath.Match(pattern, s)
	return err == nil && ok
}

// regexpMatch implements REGEXP against an RE2 pattern.
func regexpMatch(s, pattern string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
