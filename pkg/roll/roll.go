// Package roll parses the roll-number convention used across the placement
// tracker. A roll number like "23pw09" encodes the admission year (23), the
// branch code (pw) and the student's serial within the batch (09).
package roll

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Branch is an academic department code derived from the roll number.
type Branch string

const (
	BranchSS  Branch = "SS"
	BranchTCS Branch = "TCS"
	BranchCS  Branch = "CS"
	BranchDS  Branch = "DS"
)

// Branches returns all known branch codes.
func Branches() []Branch {
	return []Branch{BranchSS, BranchTCS, BranchCS, BranchDS}
}

// IsValidBranch reports whether b is one of the known branch codes.
func IsValidBranch(b Branch) bool {
	switch b {
	case BranchSS, BranchTCS, BranchCS, BranchDS:
		return true
	}
	return false
}

// Pattern matches roll numbers such as "23pw09": two year digits, a branch
// code, two serial digits.
var Pattern = regexp.MustCompile(`^(?i)(\d{2})(pw|pt|pc|pd)(\d{2})$`)

// maxBatchAge is how many admission years back a roll number is still
// considered an active batch.
const maxBatchAge = 4

var branchCodes = map[string]Branch{
	"pw": BranchSS,
	"pt": BranchTCS,
	"pc": BranchCS,
	"pd": BranchDS,
}

// BranchOf derives the branch from a roll number's embedded branch code.
func BranchOf(rollNumber string) (Branch, error) {
	if len(rollNumber) < 4 {
		return "", fmt.Errorf("invalid roll number %q", rollNumber)
	}
	code := strings.ToLower(rollNumber[2:4])
	branch, ok := branchCodes[code]
	if !ok {
		return "", fmt.Errorf("invalid roll number %q: unknown branch code %q", rollNumber, code)
	}
	return branch, nil
}

// Prefix returns the batch+branch prefix of a roll number ("23pw09" -> "23pw").
// The prefix scopes roster lookups to a single cohort.
func Prefix(rollNumber string) string {
	if len(rollNumber) < 4 {
		return strings.ToLower(rollNumber)
	}
	return strings.ToLower(rollNumber[:4])
}

// Validate checks the roll number format and that the admission year falls
// within the active batch window relative to now.
func Validate(rollNumber string, now time.Time) error {
	m := Pattern.FindStringSubmatch(rollNumber)
	if m == nil {
		return fmt.Errorf("invalid roll number format %q", rollNumber)
	}
	batch, err := strconv.Atoi(m[1])
	if err != nil {
		return fmt.Errorf("invalid roll number format %q", rollNumber)
	}
	currentYear := now.Year() % 100
	if batch > currentYear || batch < currentYear-maxBatchAge {
		return fmt.Errorf("roll number %q: batch %02d is not an active batch", rollNumber, batch)
	}
	return nil
}

// Normalize lowercases a roll number. Rosters and session claims always
// carry the lowercase form so map keys compare cleanly.
func Normalize(rollNumber string) string {
	return strings.ToLower(strings.TrimSpace(rollNumber))
}

// Email derives the institutional email for a roll number.
func Email(rollNumber string) string {
	return Normalize(rollNumber) + "@psgtech.ac.in"
}
