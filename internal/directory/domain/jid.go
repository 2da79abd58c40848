package domain

import "strings"

const jidSuffix = "@s.whatsapp.net"

// JIDFromPhone normalizes a phone number into the canonical chat
// address: every non-digit stripped, then the service suffix appended.
// "+55 (11) 99999-0000" and "5511999990000" map to the same JID.
func JIDFromPhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone) + len(jidSuffix))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	b.WriteString(jidSuffix)
	return b.String()
}
