package numbers

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse converts user input such as " 42 " into a validated value.
func Parse(s string) (uint8, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	if err := Validate(n); err != nil {
		return 0, err
	}
	return uint8(n), nil
}
