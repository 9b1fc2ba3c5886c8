package normalize

import "strings"

// consumerDomains are free mailbox providers. An address on one of these
// says nothing about the business behind the contact.
var consumerDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"yahoo.fr":       true,
	"hotmail.com":    true,
	"hotmail.fr":     true,
	"outlook.com":    true,
	"outlook.fr":     true,
	"live.com":       true,
	"live.fr":        true,
	"msn.com":        true,
	"icloud.com":     true,
	"me.com":         true,
	"aol.com":        true,
	"orange.fr":      true,
	"wanadoo.fr":     true,
	"free.fr":        true,
	"sfr.fr":         true,
	"laposte.net":    true,
	"bbox.fr":        true,
	"neuf.fr":        true,
	"gmx.fr":         true,
	"gmx.com":        true,
	"protonmail.com": true,
	"proton.me":      true,
}

// IsConsumerDomain reports whether domain belongs to a free mailbox provider.
func IsConsumerDomain(domain string) bool {
	return consumerDomains[strings.ToLower(strings.TrimSpace(domain))]
}

// BusinessDomain returns the contact's email domain when it identifies a
// business, or "" for consumer mailboxes.
func BusinessDomain(domain string) string {
	if domain == "" || IsConsumerDomain(domain) {
		return ""
	}
	return strings.ToLower(domain)
}
