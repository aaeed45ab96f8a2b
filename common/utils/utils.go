package utils

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func GetEnv(name string, def string) string {
	val := os.Getenv(name)
	if len(val) > 0 {
		return val
	} else {
		return def
	}
}

// CurrentUser returns the name of the user running this process.
//
// It falls back to the USER environment variable when the user database cannot be consulted.
func CurrentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}

	return GetEnv("USER", "")
}

// ParseSecondsList parses a comma-separated list of (possibly fractional) seconds, such as "0.2,0.5,1,3,5".
func ParseSecondsList(s string) ([]time.Duration, error) {
	fields := splitList(s)
	durations := make([]time.Duration, 0, len(fields))
	for _, field := range fields {
		seconds, err := decimal.NewFromString(field)
		if err != nil {
			return nil, fmt.Errorf("invalid number of seconds \"%s\": %w", field, err)
		}

		if seconds.IsNegative() {
			return nil, fmt.Errorf("number of seconds must not be negative: \"%s\"", field)
		}

		nanos := seconds.Mul(decimal.NewFromInt(int64(time.Second))).IntPart()
		durations = append(durations, time.Duration(nanos))
	}

	return durations, nil
}

// ParseIntList parses a comma-separated list of integers, such as "500,502,503".
func ParseIntList(s string) ([]int, error) {
	fields := splitList(s)
	values := make([]int, 0, len(fields))
	for _, field := range fields {
		val, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid integer \"%s\": %w", field, err)
		}

		values = append(values, val)
	}

	return values, nil
}

// ParseKeyValueList parses a comma-separated list of key=value pairs, such as "X-A=1,X-B=2".
func ParseKeyValueList(s string) (map[string]string, error) {
	fields := splitList(s)
	values := make(map[string]string, len(fields))
	for _, field := range fields {
		key, val, found := strings.Cut(field, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid key=value pair \"%s\"", field)
		}

		values[key] = strings.TrimSpace(val)
	}

	return values, nil
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	fields := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			fields = append(fields, part)
		}
	}

	return fields
}
