package invite

import (
	"strings"
	"testing"

	"github.com/zetxtech/anonycnbot/internal/user"
)

func TestGenerateCodeExcludesAmbiguousCharacters(t *testing.T) {
	t.Parallel()

	code, err := generateCode(64)
	if err != nil {
		t.Fatalf("generateCode() error = %v", err)
	}
	if strings.ContainsAny(code, "0O") {
		t.Errorf("generateCode() = %q, contains excluded character", code)
	}
}

func TestGenerateCodeRejectsNonPositiveLength(t *testing.T) {
	t.Parallel()

	tests := []int{0, -1, -16}
	for _, length := range tests {
		if _, err := generateCode(length); err != ErrCodeTooShort {
			t.Errorf("generateCode(%d) error = %v, want ErrCodeTooShort", length, err)
		}
	}
}

func TestCodeRedeemed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code Code
		want bool
	}{
		{"exhausted", Code{RemainingUses: 0}, true},
		{"negative treated as exhausted", Code{RemainingUses: -1}, true},
		{"has uses left", Code{RemainingUses: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.code.Redeemed(); got != tt.want {
				t.Errorf("Redeemed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidationRequestUsed(t *testing.T) {
	t.Parallel()

	v := ValidationRequest{Role: user.RoleAwarded}
	if v.Used() {
		t.Fatal("fresh ValidationRequest reported as used")
	}

	id := v.ID
	v.UsedGrantID = &id
	if !v.Used() {
		t.Fatal("ValidationRequest with UsedGrantID set reported as unused")
	}
}
