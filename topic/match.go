package topic

import "strings"

// Match reports whether the published topic name matches filter.
// "+" matches exactly one level, "#" matches the remainder and must be the
// final token. Leading and trailing "/" are significant: "a/" and "a" are
// different topics.
func Match(filter, name string) bool {
	ftok := strings.Split(filter, "/")
	ntok := strings.Split(name, "/")

	j := 0
	for i, f := range ftok {
		if f == "#" {
			return i == len(ftok)-1
		}
		if j >= len(ntok) {
			return false
		}
		if f != "+" && f != ntok[j] {
			return false
		}
		j++
	}
	return j == len(ntok)
}
