// Package domainlist answers membership questions over the embedded
// curated lists: disposable mailbox providers, free consumer providers
// and role-account local parts. All lookups are pure and allocation-free.
package domainlist

import "strings"

// IsDisposable reports whether the domain belongs to a known
// temporary-mailbox service.
func IsDisposable(domain string) bool {
	_, ok := disposableSet[strings.ToLower(domain)]
	return ok
}

// IsFree reports whether the domain belongs to a consumer mail service.
func IsFree(domain string) bool {
	_, ok := freeSet[strings.ToLower(domain)]
	return ok
}

// IsRoleAccount reports whether the local part is a functional address
// (admin, info, support...) rather than a person's mailbox.
func IsRoleAccount(local string) bool {
	_, ok := roleSet[strings.ToLower(local)]
	return ok
}
