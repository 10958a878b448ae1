package doctor

import (
	"testing"
)

func TestParseMajorMinor(t *testing.T) {
	tests := []struct {
		name      string
		ver       string
		wantMajor int
		wantMinor int
		wantErr   bool
	}{
		{"simple", "1.25", 1, 25, false},
		{"with patch", "1.25.1", 1, 25, false},
		{"release candidate", "1.26rc1", 1, 26, false},
		{"single number", "1", 0, 0, true},
		{"empty", "", 0, 0, true},
		{"bad major", "abc.11", 0, 0, true},
		{"bad minor", "1.xyz", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			major, minor, err := parseMajorMinor(tt.ver)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseMajorMinor(%q) = (%d,%d,nil); want error", tt.ver, major, minor)
				}

				return
			}

			if err != nil {
				t.Fatalf("parseMajorMinor(%q) error: %v", tt.ver, err)
			}

			if major != tt.wantMajor || minor != tt.wantMinor {
				t.Fatalf("parseMajorMinor(%q) = (%d,%d); want (%d,%d)",
					tt.ver, major, minor, tt.wantMajor, tt.wantMinor)
			}
		})
	}
}

func TestCheckGoVersion(t *testing.T) {
	tests := []struct {
		ver     string
		wantErr bool
	}{
		{"go1.24.0", false},
		{"go1.25.1", false},
		{"go1.26rc1", false},
		{"go1.23.9", true},
		{"go2.0", true},
		{"devel", true},
	}

	for _, tt := range tests {
		err := checkGoVersion(tt.ver)
		if (err != nil) != tt.wantErr {
			t.Errorf("checkGoVersion(%q) error = %v; wantErr %v", tt.ver, err, tt.wantErr)
		}
	}
}
