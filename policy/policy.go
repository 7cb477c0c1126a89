// Package policy implements the configurable password policy shared by the
// client facade and the reference backend.
package policy

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// DefaultSpecialChars is the special character set used when a policy does
// not name its own.
const DefaultSpecialChars = "!@#$%^&*()_+-=[]{}|;:,.<>?"

var (
	upperPattern  = regexp.MustCompile(`[A-Z]`)
	numberPattern = regexp.MustCompile(`[0-9]`)
)

// Policy defines the password rules. Every rule can be toggled on its own.
type Policy struct {
	MinLength          int      `yaml:"min_length" json:"minLength" validate:"min=0"`
	RequireUppercase   bool     `yaml:"require_uppercase" json:"requireUppercase"`
	RequireNumber      bool     `yaml:"require_number" json:"requireNumber"`
	RequireSpecialChar bool     `yaml:"require_special_char" json:"requireSpecialChar"`
	SpecialChars       string   `yaml:"special_chars" json:"specialChars"`
	BlockCommon        bool     `yaml:"block_common" json:"blockCommon"`
	CommonPasswords    []string `yaml:"common_passwords" json:"commonPasswords"`
}

// Default returns the policy the application ships with: eight characters
// minimum and every other rule off.
func Default() Policy {
	return Policy{
		MinLength:    8,
		SpecialChars: DefaultSpecialChars,
	}
}

// Validate returns one human-readable message per violated rule, in a fixed
// order. An empty result means the password is acceptable.
func (p Policy) Validate(password string) []string {
	var violations []string

	if len([]rune(password)) < p.MinLength {
		violations = append(violations, fmt.Sprintf("Minimum %d characters", p.MinLength))
	}

	if p.RequireUppercase && !upperPattern.MatchString(password) {
		violations = append(violations, "At least one uppercase letter")
	}

	if p.RequireNumber && !numberPattern.MatchString(password) {
		violations = append(violations, "At least one number")
	}

	if p.RequireSpecialChar {
		chars := p.specialChars()
		if !strings.ContainsAny(password, chars) {
			violations = append(violations, fmt.Sprintf("At least one special character (%s)", chars))
		}
	}

	if p.BlockCommon && len(p.CommonPasswords) > 0 {
		lowered := strings.ToLower(password)
		if slices.ContainsFunc(p.CommonPasswords, func(common string) bool {
			return strings.ToLower(common) == lowered
		}) {
			violations = append(violations, "Password is too common")
		}
	}

	return violations
}

func (p Policy) specialChars() string {
	if p.SpecialChars == "" {
		return DefaultSpecialChars
	}
	return p.SpecialChars
}

// ValidatePassword checks password against p.
func ValidatePassword(password string, p Policy) []string {
	return p.Validate(password)
}
