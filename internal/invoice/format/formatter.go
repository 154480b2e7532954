package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

var (
	seqPadRe   = regexp.MustCompile(`\{SEQ(\d+)\}`)
	tokenRe    = regexp.MustCompile(`\{(YYYY|YY|MM|DD|SEQ\d*)\}`)
	templateRe = regexp.MustCompile(`\{[^}]*\}`)
)

// DefaultInvoiceNumberTemplate renders INV-YYYYMM-NNNN.
const DefaultInvoiceNumberTemplate = "INV-{YYYY}{MM}-{SEQ4}"

// FormatInvoiceNumber renders an invoice number for the numbering period and
// sequence. Padded sequences widen past their width instead of wrapping.
func FormatInvoiceNumber(template string, period time.Time, seq int64) (string, error) {
	if err := ValidateTemplate(template); err != nil {
		return "", err
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	out := replaceDateTokens(template, period)
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))
	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		width, _ := strconv.Atoi(seqPadRe.FindStringSubmatch(m)[1])
		return fmt.Sprintf("%0*d", width, seq)
	})
	return out, nil
}

// ParseSequence extracts the sequence from an invoice number that was rendered
// with template for period. Numbers from another template or period report false.
func ParseSequence(template string, period time.Time, number string) (int64, bool) {
	if ValidateTemplate(template) != nil {
		return 0, false
	}

	var pattern strings.Builder
	pattern.WriteString("^")
	rest := replaceDateTokens(template, period)
	for {
		loc := tokenRe.FindStringIndex(rest)
		if loc == nil {
			pattern.WriteString(regexp.QuoteMeta(rest))
			break
		}
		pattern.WriteString(regexp.QuoteMeta(rest[:loc[0]]))
		pattern.WriteString(`(\d+)`)
		rest = rest[loc[1]:]
	}
	pattern.WriteString("$")

	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return 0, false
	}
	match := re.FindStringSubmatch(number)
	if len(match) != 2 {
		return 0, false
	}
	seq, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}

// ValidateTemplate requires exactly one sequence token and only known tokens.
func ValidateTemplate(template string) error {
	if strings.TrimSpace(template) == "" {
		return fmt.Errorf("invoice number template is empty")
	}
	seqTokens := 0
	for _, tok := range templateRe.FindAllString(template, -1) {
		if !tokenRe.MatchString(tok) {
			return fmt.Errorf("unknown token %s in invoice number template", tok)
		}
		if strings.HasPrefix(tok, "{SEQ") {
			seqTokens++
		}
	}
	if seqTokens != 1 {
		return fmt.Errorf("invoice number template needs exactly one sequence token: %s", template)
	}
	stripped := templateRe.ReplaceAllString(template, "")
	if strings.ContainsAny(stripped, "{}") {
		return fmt.Errorf("unbalanced braces in invoice number template: %s", template)
	}
	return nil
}

// PeriodKey is the YYYYMM bucket a sequence resets on.
func PeriodKey(period time.Time) string {
	return period.UTC().Format("200601")
}

func replaceDateTokens(template string, period time.Time) string {
	period = period.UTC()
	out := strings.ReplaceAll(template, "{YYYY}", period.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", period.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", period.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", period.Format("02"))
	return out
}

// DocumentFilename is a download-safe file name for an invoice document.
// Numbers may carry slashes or Greek series prefixes, so the name is slugged.
func DocumentFilename(kind, number, ext string) string {
	return slug.Make(strings.TrimSpace(kind+" "+number)) + "." + ext
}
