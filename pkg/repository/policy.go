package repository

import (
	"fmt"
	"strings"
)

// ReadPolicy decides what a failed fetch on the read path turns into.
type ReadPolicy string

const (
	// ReadPolicyDegrade logs the failure and yields no rows. A missing
	// collection, an empty one and an unreachable store look the same.
	ReadPolicyDegrade ReadPolicy = "degrade"
	// ReadPolicyStrict returns the failure wrapped in ErrReadFailed.
	ReadPolicyStrict ReadPolicy = "strict"
)

// ParseReadPolicy accepts "degrade" or "strict" in any case. An empty
// string is ReadPolicyDegrade.
func ParseReadPolicy(s string) (ReadPolicy, error) {
	switch p := ReadPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ReadPolicyDegrade, nil
	case ReadPolicyDegrade, ReadPolicyStrict:
		return p, nil
	default:
		return "", fmt.Errorf("unknown read policy %q, expected %q or %q", s, ReadPolicyDegrade, ReadPolicyStrict)
	}
}

func (p ReadPolicy) String() string {
	return string(p)
}
