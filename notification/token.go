package notification

import "regexp"

var tokenPatterns = map[RecipientType]*regexp.Regexp{
	RecipientParent:  regexp.MustCompile(`^TKN_PAR_[A-Z0-9]{8}$`),
	RecipientStudent: regexp.MustCompile(`^TKN_STU_[A-Z0-9]{8}$`),
	RecipientTeacher: regexp.MustCompile(`^TKN_TEA_[A-Z0-9]{8}$`),
}

// ValidateToken checks the shape of a recipient token against the pattern of
// its declared recipient type.
func ValidateToken(token string, t RecipientType) bool {
	p, ok := tokenPatterns[t]
	if !ok {
		return false
	}
	return p.MatchString(token)
}
