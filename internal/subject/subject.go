package subject

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const dateLayout = "2006-01-02"

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Record holds the personal data a verification workflow submits on behalf of
// one subject. The engine validates it before any remote call; the step client
// never sees a structurally invalid record.
type Record struct {
	FirstName        string
	LastName         string
	BirthDate        string // YYYY-MM-DD
	Email            string
	Phone            string
	OrganizationID   int64
	OrganizationName string
	DischargeDate    string // YYYY-MM-DD, veterans only
	StatusCode       string // remote status selector, e.g. VETERAN
	Country          string
	Locale           string
}

var titleCaser = cases.Title(language.AmericanEnglish, cases.NoLower)

// Normalize trims whitespace and title-cases names so records sourced from
// scraped rosters submit consistently.
func (r Record) Normalize() Record {
	r.FirstName = titleCaser.String(strings.TrimSpace(r.FirstName))
	r.LastName = titleCaser.String(strings.TrimSpace(r.LastName))
	r.BirthDate = strings.TrimSpace(r.BirthDate)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.OrganizationName = strings.TrimSpace(r.OrganizationName)
	r.DischargeDate = strings.TrimSpace(r.DischargeDate)
	r.StatusCode = strings.ToUpper(strings.TrimSpace(r.StatusCode))
	if strings.TrimSpace(r.Country) == "" {
		r.Country = "US"
	}
	if strings.TrimSpace(r.Locale) == "" {
		r.Locale = "en-US"
	}
	return r
}

// Fields flattens the record into the field map consulted when a step spec
// declares required fields.
func (r Record) Fields() map[string]string {
	fields := map[string]string{
		"firstName": r.FirstName,
		"lastName":  r.LastName,
		"birthDate": r.BirthDate,
		"email":     r.Email,
		"country":   r.Country,
		"locale":    r.Locale,
	}
	if r.Phone != "" {
		fields["phoneNumber"] = r.Phone
	}
	if r.OrganizationID > 0 {
		fields["organization.id"] = strconv.FormatInt(r.OrganizationID, 10)
	}
	if r.OrganizationName != "" {
		fields["organization.name"] = r.OrganizationName
	}
	if r.DischargeDate != "" {
		fields["dischargeDate"] = r.DischargeDate
	}
	if r.StatusCode != "" {
		fields["status"] = r.StatusCode
	}
	return fields
}

// Validate checks the structural constraints every profile shares. It returns
// all problems found, not just the first, so operators can fix a record in one
// pass.
func (r Record) Validate() []string {
	var problems []string

	if r.FirstName == "" {
		problems = append(problems, "first name is empty")
	} else if r.FirstName != strings.TrimSpace(r.FirstName) {
		problems = append(problems, fmt.Sprintf("first name has surrounding spaces: %q", r.FirstName))
	}
	if r.LastName == "" {
		problems = append(problems, "last name is empty")
	} else if r.LastName != strings.TrimSpace(r.LastName) {
		problems = append(problems, fmt.Sprintf("last name has surrounding spaces: %q", r.LastName))
	}

	if !dateRe.MatchString(r.BirthDate) {
		problems = append(problems, fmt.Sprintf("birth date %q is not YYYY-MM-DD", r.BirthDate))
	} else if parsed, err := time.Parse(dateLayout, r.BirthDate); err != nil {
		problems = append(problems, fmt.Sprintf("birth date %q is not a real date", r.BirthDate))
	} else {
		age := time.Since(parsed)
		switch {
		case parsed.After(time.Now()):
			problems = append(problems, "birth date is in the future")
		case age > 110*365*24*time.Hour:
			problems = append(problems, fmt.Sprintf("birth date %q implies an implausible age", r.BirthDate))
		}
	}

	if r.DischargeDate != "" {
		if !dateRe.MatchString(r.DischargeDate) {
			problems = append(problems, fmt.Sprintf("discharge date %q is not YYYY-MM-DD", r.DischargeDate))
		} else if _, err := time.Parse(dateLayout, r.DischargeDate); err != nil {
			problems = append(problems, fmt.Sprintf("discharge date %q is not a real date", r.DischargeDate))
		}
	}

	if r.Email == "" || !strings.Contains(r.Email, "@") {
		problems = append(problems, fmt.Sprintf("email %q is invalid", r.Email))
	}

	if r.OrganizationName == "" && r.OrganizationID > 0 {
		problems = append(problems, "organization id set without a name")
	}

	return problems
}

// RequireFields reports the declared fields absent from the record. Field
// names follow the flattened form produced by Fields.
func (r Record) RequireFields(names []string) []string {
	fields := r.Fields()
	var missing []string
	for _, name := range names {
		if strings.TrimSpace(fields[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
