package analyzer

import (
	"fmt"
	"iter"
	"regexp"
	"strings"

	"query-doctor/internal/model"
	"query-doctor/internal/sqlparse"

	libinjection "github.com/corazawaf/libinjection-go"
)

// RiskLevel grades the injection likelihood of a single query.
type RiskLevel int

const (
	RiskNone RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	default:
		return "NONE"
	}
}

// ParseRiskLevel maps a config string to a RiskLevel, defaulting to LOW.
func ParseRiskLevel(s string) RiskLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NONE":
		return RiskNone
	case "MEDIUM":
		return RiskMedium
	case "HIGH":
		return RiskHigh
	default:
		return RiskLow
	}
}

// The detector is deliberately pattern-based rather than AST-based:
// injected SQL is frequently malformed and cannot be parsed as valid SQL,
// so a grammar-level check would go blind exactly when it matters.
type heuristic struct {
	description string
	re          *regexp.Regexp
}

var injectionHeuristics = []heuristic{
	{"numeric literal wrapped in quotes", regexp.MustCompile(`'\s*\d+\s*'`)},
	{"SQL keyword inside a string literal", regexp.MustCompile(`(?i)'[^']*\b(union|select|insert|update|delete|drop|exec|sleep|benchmark|waitfor)\b[^']*'`)},
	{"comment marker following a quote", regexp.MustCompile(`'[^']*(--|/\*|#)`)},
	{"consecutive quote characters", regexp.MustCompile(`''|""`)},
	{"LIKE with an unparameterized pattern", regexp.MustCompile(`(?i)\bLIKE\s+'`)},
	{"string literal compared directly in WHERE", regexp.MustCompile("(?i)\\bWHERE\\s+[a-z_.`\"]+\\s*=\\s*'")},
	{"multiple literal conditions joined by OR/AND", regexp.MustCompile(`(?i)\b(or|and)\s+('[^']*'|\d+)\s*=\s*('[^']*'|\d+)`)},
}

var quotedLiteral = regexp.MustCompile(`'((?:[^'\\]|\\.)*)'`)

// ScoreInjection rates sql across the textual heuristics plus a
// libinjection pass over its string literals (the parts an attacker
// controls). Higher scores mean more independent indicators matched.
func ScoreInjection(sql string) (int, []string) {
	score := 0
	var matched []string
	for _, h := range injectionHeuristics {
		if h.re.MatchString(sql) {
			score++
			matched = append(matched, h.description)
		}
	}
	for _, m := range quotedLiteral.FindAllStringSubmatch(sql, -1) {
		lit := m[1]
		if len(lit) < 3 {
			continue
		}
		if sqli, _ := libinjection.IsSQLi(lit); sqli {
			score += 2
			matched = append(matched, "string literal fingerprints as SQL injection")
			break
		}
	}
	return score, matched
}

// RiskOf converts a heuristic score to a level.
func RiskOf(score int) RiskLevel {
	switch {
	case score <= 0:
		return RiskNone
	case score == 1:
		return RiskLow
	case score <= 3:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// InjectionRisk reports queries whose text shows signs of concatenated user
// input instead of bound parameters.
type InjectionRisk struct {
	ext *sqlparse.Extractor

	// MinLevel is the lowest risk level that is reported.
	MinLevel RiskLevel
}

func NewInjectionRisk(ext *sqlparse.Extractor, minLevel RiskLevel) *InjectionRisk {
	if minLevel == RiskNone {
		minLevel = RiskLow
	}
	return &InjectionRisk{ext: ext, MinLevel: minLevel}
}

func (a *InjectionRisk) Name() string { return "injection_risk" }

func (a *InjectionRisk) Analyze(queries []model.QueryRecord) iter.Seq[model.Issue] {
	return func(yield func(model.Issue) bool) {
		seen := make(map[string]struct{})

		for _, q := range queries {
			score, indicators := ScoreInjection(q.SQL)
			level := RiskOf(score)
			if level < a.MinLevel {
				continue
			}

			norm := a.ext.Normalize(q.SQL)
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}

			severity := model.SeverityInfo
			switch level {
			case RiskMedium:
				severity = model.SeverityWarning
			case RiskHigh:
				severity = model.SeverityCritical
			}

			issue := model.Issue{
				Type:     "injection_risk",
				Title:    fmt.Sprintf("Potential SQL Injection Risk (%s)", level),
				Severity: severity,
				Description: fmt.Sprintf(
					"Query matched %d injection indicators: %s.",
					score, strings.Join(indicators, "; ")),
				Suggestion: &model.Suggestion{
					Template: "suggestions/injection_parameterize",
					Context:  map[string]string{"level": level.String()},
					Summary:  "Bind every user-supplied value as a parameter; never concatenate values into SQL text.",
				},
				Queries:   []model.QueryRecord{q},
				Backtrace: q.Backtrace,
			}
			if !yield(issue) {
				return
			}
		}
	}
}
