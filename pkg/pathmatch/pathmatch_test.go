package pathmatch

import "testing"

func TestMatches(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"*.log", "/var/log/app.log", true},
		{"*.log", "/var/log/app.LOG", false},
		{"app*.log", "/var/log/application.log", true},
		{"exact.log", "/var/log/exact.log", true},
		{"exact.log", "/var/log/other.log", false},
		{"*.log", "/var/log/sub/app.log", true},
		{"", "/var/log/anything", true},
	}
	for _, c := range cases {
		if got := Matches(c.pattern, c.path); got != c.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}
