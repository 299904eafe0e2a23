// ABOUTME: Tests for version constants
// ABOUTME: Ensures version information is usable in CLI output and hello messages
package version

import (
	"strings"
	"testing"
)

func TestVersionDefined(t *testing.T) {
	if Version == "" {
		t.Fatal("Version should not be empty")
	}
	if parts := strings.Split(Version, "."); len(parts) != 3 {
		t.Errorf("expected major.minor.patch, got %q", Version)
	}
}

func TestProductIsCommandName(t *testing.T) {
	if Product == "" || strings.ContainsAny(Product, " \t") {
		t.Errorf("product %q must be a single word", Product)
	}
	if Product != strings.ToLower(Product) {
		t.Errorf("product %q should be lower case", Product)
	}
}

func TestManufacturerDefined(t *testing.T) {
	if Manufacturer == "" {
		t.Error("Manufacturer should not be empty")
	}
}
