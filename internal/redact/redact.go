// Package redact masks credentials in free text before it is persisted.
package redact

import "regexp"

type Applied struct {
	Names []string
}

type rule struct {
	name        string
	re          *regexp.Regexp
	replacement string
}

var rules = []rule{
	{"private_key", regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`), "[REDACTED:PRIVATE_KEY]"},
	{"github_token", regexp.MustCompile(`\b(?:gh[pousr]_[A-Za-z0-9]{10,}|github_pat_[A-Za-z0-9_]{20,})\b`), "[REDACTED:GITHUB_TOKEN]"},
	{"openai_key", regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{10,}\b`), "[REDACTED:OPENAI_KEY]"},
	{"slack_token", regexp.MustCompile(`\bxox[abposr]-[A-Za-z0-9-]{10,}\b`), "[REDACTED:SLACK_TOKEN]"},
	{"aws_access_key_id", regexp.MustCompile(`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`), "[REDACTED:AWS_ACCESS_KEY_ID]"},
	{"jwt", regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\b`), "[REDACTED:JWT]"},
	{"bearer_token", regexp.MustCompile(`(?i)(\bbearer\s+)[A-Za-z0-9._~+/-]{16,}=*`), "${1}[REDACTED:BEARER_TOKEN]"},
}

// Text returns s with every known credential shape replaced, and the names of
// the rules that fired in rule order.
func Text(s string) (string, Applied) {
	applied := Applied{}
	out := s
	for _, r := range rules {
		if r.re.MatchString(out) {
			out = r.re.ReplaceAllString(out, r.replacement)
			applied.Names = append(applied.Names, r.name)
		}
	}
	return out, applied
}
