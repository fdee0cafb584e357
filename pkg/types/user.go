package types

import "strings"

// User is the CRM user on whose behalf the engine runs.
// Callers authenticate the user before handing it to the engine.
type User struct {
	Id    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Account is a CRM organization, read only here
type Account struct {
	Id      string `db:"id" json:"id"`
	UserId  string `db:"user_id" json:"-"`
	Name    string `db:"name" json:"name"`
	Domain  string `db:"domain" json:"domain"`
	Website string `db:"website" json:"website"`
}

// Contact is a CRM person, read only here
type Contact struct {
	Id        string  `db:"id" json:"id"`
	UserId    string  `db:"user_id" json:"-"`
	AccountId *string `db:"account_id" json:"accountId"`
	Name      string  `db:"name" json:"name"`
	Email     string  `db:"email" json:"email"`
}

// NormalizeDomain reduces a domain or website value to a bare lowercase host,
// e.g. "https://www.Acme.com/about" becomes "acme.com"
func NormalizeDomain(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if i := strings.Index(v, "://"); i >= 0 {
		v = v[i+3:]
	}
	if i := strings.IndexAny(v, "/?#"); i >= 0 {
		v = v[:i]
	}
	if i := strings.LastIndex(v, "@"); i >= 0 {
		v = v[i+1:]
	}
	if i := strings.Index(v, ":"); i >= 0 {
		v = v[:i]
	}
	v = strings.TrimPrefix(v, "www.")
	return strings.TrimSuffix(v, ".")
}
