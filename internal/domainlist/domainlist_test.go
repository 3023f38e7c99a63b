package domainlist_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/reachkit/internal/domainlist"
)

func TestIsDisposable(t *testing.T) {
	assert.True(t, domainlist.IsDisposable("mailinator.com"))
	assert.True(t, domainlist.IsDisposable("MAILINATOR.COM"), "lookup is case-insensitive")
	assert.True(t, domainlist.IsDisposable("yopmail.fr"))
	assert.False(t, domainlist.IsDisposable("gmail.com"))
	assert.False(t, domainlist.IsDisposable("example.com"))
}

func TestIsFree(t *testing.T) {
	assert.True(t, domainlist.IsFree("gmail.com"))
	assert.True(t, domainlist.IsFree("yahoo.co.uk"))
	assert.True(t, domainlist.IsFree("Outlook.com"))
	assert.False(t, domainlist.IsFree("mailinator.com"), "disposable is not free")
	assert.False(t, domainlist.IsFree("example.com"))
}

func TestIsRoleAccount(t *testing.T) {
	assert.True(t, domainlist.IsRoleAccount("admin"))
	assert.True(t, domainlist.IsRoleAccount("Support"))
	assert.True(t, domainlist.IsRoleAccount("no-reply"))
	assert.False(t, domainlist.IsRoleAccount("jane.doe"))
}
