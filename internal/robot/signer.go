package robot

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

const authScheme = "NEATOAPP "

// HTTPDate formats t as an RFC 2616 date. Go's layout names are fixed
// English abbreviations, so the output does not depend on the process locale.
func HTTPDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// Sign returns the hex HMAC-SHA256 of lower(serial) + "\n" + date + "\n" + body.
func Sign(serial, secret, date string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.ToLower(serial)))
	mac.Write([]byte("\n"))
	mac.Write([]byte(date))
	mac.Write([]byte("\n"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Signer stamps relay requests with Date and Authorization headers.
type Signer struct {
	now func() time.Time
}

func NewSigner(now func() time.Time) Signer {
	if now == nil {
		now = time.Now
	}
	return Signer{now: now}
}

// Headers signs body for the given robot. The Date header carries the exact
// string used as signing input.
func (s Signer) Headers(serial, secret string, body []byte) http.Header {
	now := s.now
	if now == nil {
		now = time.Now
	}
	date := HTTPDate(now())

	h := http.Header{}
	h.Set("Date", date)
	h.Set("Authorization", authScheme+Sign(serial, secret, date, body))
	return h
}
