package classify

import "fmt"

// Status lines shown while the loop is running.
const (
	StatusSearching = "Looking for a match... (No confident recognition)"
)

// StatusLine returns the one-line description of a result.
func StatusLine(r Result) string {
	if r.Confident {
		return fmt.Sprintf("Recognized: %s!", r.ClassName)
	}
	return StatusSearching
}

// Describe renders a result with its confidence, e.g. "dog (90.0%)".
func Describe(r Result) string {
	return fmt.Sprintf("%s (%.1f%%)", r.ClassName, r.Percent())
}
