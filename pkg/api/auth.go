package api

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// AuthHeader is the header carrying the access credential on every call.
const AuthHeader = "X-Auth"

// Credential produces the value of the auth header for a call made at now.
type Credential interface {
	Token(now time.Time) string
}

// StaticToken is a credential sent verbatim.
type StaticToken string

// Token returns the token unchanged.
func (t StaticToken) Token(time.Time) string {
	return string(t)
}

// DatedPassword derives the token from a password and the current UTC date,
// as md5 of "<password>_<YYYYMMDD>" in lowercase hex.
type DatedPassword string

// Token returns the derived token for the UTC day containing now.
func (p DatedPassword) Token(now time.Time) string {
	sum := md5.Sum([]byte(string(p) + "_" + now.UTC().Format("20060102")))
	return hex.EncodeToString(sum[:])
}
