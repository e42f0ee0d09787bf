package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Version is a content version sent by a client as expectedVersion. Editors
// built on form fields send it as a string, so both "3" and 3 are accepted.
// Versions start at 1 and only grow; negative and fractional values are
// rejected here rather than wrapping around into a huge uint64.
type Version uint64

// ParseVersion reads a decimal version number
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("version is empty")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("version %s is negative, versions start at 1", s)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version %q is not a whole number", s)
	}
	return Version(v), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (v *Version) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("version: %w", err)
		}
		parsed, err := ParseVersion(s)
		if err != nil {
			return err
		}
		*v = parsed
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("version must be a number or a numeric string")
	}
	parsed, err := ParseVersion(n.String())
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalJSON writes the version as a JSON number.
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint64(v))
}

// Uint64 returns the version as stored.
func (v Version) Uint64() uint64 {
	return uint64(v)
}
