package ai

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/zhouzirui/intake-sim/backend/internal/model/persona"
)

var agePattern = regexp.MustCompile(`(?i)\b(\d+)(?:\s*[-–]\s*|\s+)(?:years?|yrs?)(?:\s*[-–]\s*|\s+)old\b`)

// Any capitalized word after an introducer counts as a name, so
// "I'm American" is read as a name claim.
var namePattern = regexp.MustCompile(`\b(?i:i'm|i’m|i am|my name is)\s+([A-Z][a-z]+)\b`)

// CheckConsistent reports whether reply contradicts the persona's age or
// name. Only the first stated age and first self-introduction are looked at;
// a reply that states neither is consistent. This is a heuristic and misses
// plenty of contradictions.
func CheckConsistent(reply string, p persona.Persona) bool {
	if m := agePattern.FindStringSubmatch(reply); m != nil {
		age, err := strconv.Atoi(m[1])
		if err != nil || age != p.Age {
			return false
		}
	}

	if m := namePattern.FindStringSubmatch(reply); m != nil && m[1] != p.Name {
		return false
	}

	return true
}

// GenerateCorrection returns the reply substituted for an inconsistent one.
func GenerateCorrection(p persona.Persona) string {
	reply := fmt.Sprintf("I'm sorry if I wasn't clear before. My name is %s, and I'm %d years old. %s",
		p.Name, p.Age, persona.CorrectionCue(p.Condition.Name))
	return strings.TrimSpace(reply)
}
