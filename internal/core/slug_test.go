package core

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jon Doe", "jon-doe"},
		{"  Jon   Doe!! ", "jon-doe"},
		{"Beyoncé Knowles", "beyonce-knowles"},
		{"Jay-Z", "jay-z"},
		{"O'Neal, Shaquille", "o-neal-shaquille"},
		{"50 Cent", "50-cent"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPortraitStem(t *testing.T) {
	if got := PortraitStem("Jon Doe", 1980); got != "jon-doe-1980" {
		t.Errorf("PortraitStem = %q, want jon-doe-1980", got)
	}
	if PortraitStem("Jon Doe", 1980) == PortraitStem("Jon Doe", 1991) {
		t.Error("Expected namesakes to get distinct stems")
	}
	if got := PortraitStem("Jon Doe", 0); got != "jon-doe" {
		t.Errorf("PortraitStem without year = %q, want jon-doe", got)
	}
}
