package session

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := map[string]bool{
		"main":                  true,
		"work-2":                true,
		"support_bot":           true,
		"7":                     true,
		strings.Repeat("a", 64): true,
		"":                      false,
		"-work":                 false,
		"_work":                 false,
		"Work":                  false,
		"team chat":             false,
		"../main":               false,
		"main.db":               false,
		"@gophers":              false,
		strings.Repeat("a", 65): false,
	}
	for name, valid := range tests {
		err := ValidateName(name)
		if valid && err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
		if !valid && !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}
