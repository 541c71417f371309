// Package utils holds small helpers shared by handlers and commands.
package utils

import "strings"

// ParseCSV splits a comma-separated list and returns the trimmed non-empty
// values, or nil when there are none. Used for query filters such as
// ?types=TRADE_EXECUTED,POSITION_CLOSED and symbol lists.
func ParseCSV(s string) []string {
	var result []string
	for _, v := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
