package policy

import (
	"strings"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	strict := Policy{
		MinLength:          12,
		RequireUppercase:   true,
		RequireNumber:      true,
		RequireSpecialChar: true,
		SpecialChars:       "!@#",
		BlockCommon:        true,
		CommonPasswords:    []string{"password1234!A", "letmein"},
	}

	tests := []struct {
		name     string
		password string
		policy   Policy
		want     []string
	}{
		{
			name:     "short_password_min_length_only",
			password: "short",
			policy:   Policy{MinLength: 12},
			want:     []string{"Minimum 12 characters"},
		},
		{
			name:     "satisfies_every_rule",
			password: "Correct#Horse9Battery",
			policy:   strict,
			want:     nil,
		},
		{
			name:     "missing_uppercase",
			password: "correct#horse9battery",
			policy:   strict,
			want:     []string{"At least one uppercase letter"},
		},
		{
			name:     "missing_number",
			password: "Correct#HorseBattery",
			policy:   strict,
			want:     []string{"At least one number"},
		},
		{
			name:     "missing_special_char",
			password: "CorrectHorse9Battery",
			policy:   strict,
			want:     []string{"At least one special character (!@#)"},
		},
		{
			name:     "common_password_case_insensitive",
			password: "PASSWORD1234!a",
			policy:   strict,
			want:     []string{"Password is too common"},
		},
		{
			name:     "block_common_without_list_is_noop",
			password: "letmein",
			policy:   Policy{BlockCommon: true},
			want:     nil,
		},
		{
			name:     "empty_special_chars_falls_back_to_default",
			password: "abc",
			policy:   Policy{RequireSpecialChar: true},
			want:     []string{"At least one special character (" + DefaultSpecialChars + ")"},
		},
		{
			name:     "everything_violated_in_order",
			password: "abc",
			policy:   Policy{MinLength: 8, RequireUppercase: true, RequireNumber: true},
			want: []string{
				"Minimum 8 characters",
				"At least one uppercase letter",
				"At least one number",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidatePassword(tt.password, tt.policy)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("ValidatePassword(%q) = %q, want %q", tt.password, got, tt.want)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	p := Default()
	if p.MinLength != 8 {
		t.Errorf("MinLength = %d, want 8", p.MinLength)
	}
	if p.RequireUppercase || p.RequireNumber || p.RequireSpecialChar || p.BlockCommon {
		t.Errorf("Default() enables optional rules: %+v", p)
	}
	if got := p.Validate("eightchr"); len(got) != 0 {
		t.Errorf("Validate(eightchr) = %v, want none", got)
	}
}
