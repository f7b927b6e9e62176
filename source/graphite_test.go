/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package source

import (
	"testing"

	"github.com/etsangsplk/cernan/metric"
)

func TestParseGraphiteLine(t *testing.T) {
	cases := []struct {
		line  string
		name  string
		value float64
		time  int64
	}{
		{"web.pages.sum 12 1136", "web.pages.sum", 12, 1136},
		{"web.pages.sum 1.5 1136.0", "web.pages.sum", 1.5, 1136},
		{"  spaced   3   9  ", "spaced", 3, 9},
		{"neg -4 100", "neg", -4, 100},
	}

	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			point, err := parseGraphiteLine(tc.line)
			if err != nil {
				t.Fatalf("parseGraphiteLine(%q): %v", tc.line, err)
			}
			if point.Name != tc.name {
				t.Errorf("name = %q, want %q", point.Name, tc.name)
			}
			if point.Kind != metric.Set {
				t.Errorf("kind = %v, want Set", point.Kind)
			}
			if point.Value() != tc.value {
				t.Errorf("value = %v, want %v", point.Value(), tc.value)
			}
			if point.Time != tc.time {
				t.Errorf("time = %d, want %d", point.Time, tc.time)
			}
		})
	}
}

func TestParseGraphiteLineRejects(t *testing.T) {
	lines := []string{
		"",
		"only.name",
		"name value",
		"name 1 2 3",
		"name abc 100",
		"name 1 notatime",
	}
	for _, line := range lines {
		if _, err := parseGraphiteLine(line); err == nil {
			t.Errorf("parseGraphiteLine(%q) accepted, want error", line)
		}
	}
}
