package verification

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultIdentityDigits is the length of a national identity or bank verification number
const DefaultIdentityDigits = 11

var (
	bankAccountNumberPattern = regexp.MustCompile(`(?i:Account\s*No)\.?\s*:?\s*(\d{10})\b`)
	// Words are single-space separated, so a wider gap or a line break ends the name.
	bankAccountNamePattern = regexp.MustCompile(`(?i:Account\s*Name)\s*:?[ \t]*([A-Za-z][A-Za-z.'-]*(?: [A-Za-z][A-Za-z.'-]*)*)`)
	// A statement field label on the same line ends the name.
	bankFieldLabelPattern = regexp.MustCompile(`(?i)\s(?:Account|Acct|A/C|BVN|Balance|Branch|Currency|Date|Period|Address|Sort)\b.*$`)
)

// identityPattern matches a standalone run of exactly digits digits
func identityPattern(digits int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`\b\d{%d}\b`, digits))
}

// findIdentityNumber returns the first identity-shaped number in text
func findIdentityNumber(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindString(text)
	return m, m != ""
}

// bankStatementFields are the account details parsed from statement text
type bankStatementFields struct {
	AccountNumber string
	AccountName   string
}

// parseBankStatement extracts the 10-digit account number and, when present, the account name
func parseBankStatement(text string) bankStatementFields {
	var fields bankStatementFields
	if m := bankAccountNumberPattern.FindStringSubmatch(text); len(m) == 2 {
		fields.AccountNumber = m[1]
	}
	if m := bankAccountNamePattern.FindStringSubmatch(text); len(m) == 2 {
		fields.AccountName = strings.TrimSpace(bankFieldLabelPattern.ReplaceAllString(m[1], ""))
	}
	return fields
}
