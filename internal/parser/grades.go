package parser

import (
	"regexp"
	"strings"
)

// gradePattern matches Sheldon-scale labels with optional designations:
// MS63, MS-63, PF65, PR70DCAM, AU58+, MS65RD, VF20, G4.
var gradePattern = regexp.MustCompile(`^(PO|FR|AG|G|VG|F|VF|EF|XF|AU|MS|PF|PR|SP)[- ]?(\d{1,2})(\+)? ?(PL|DMPL|RD|RB|BN|CAM|DCAM|UCAM|FB|FBL|FH|FS|FT|DC)?$`)

// IsGradeLabel reports whether a cleaned header label is a grade column.
func IsGradeLabel(label string) bool {
	return gradePattern.MatchString(strings.ToUpper(strings.TrimSpace(label)))
}

// cleanHeader uppercases and trims a header cell, strips trailing footnote
// markers and collapses whitespace.
func cleanHeader(text string) string {
	label := strings.ToUpper(strings.Join(strings.Fields(text), " "))
	label = strings.TrimRight(label, "*†‡ ")
	return strings.TrimSpace(label)
}
