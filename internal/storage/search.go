package storage

import (
	"strings"

	"golang.org/x/text/cases"

	"contactdesk/internal/models"
)

var searchFolder = cases.Fold()

// foldContains reports whether haystack contains needle under Unicode case
// folding, so that searches match regardless of case or locale-specific
// casing rules.
func foldContains(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(searchFolder.String(haystack), searchFolder.String(needle))
}

func contactMatchesQuery(contact models.Contact, query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return true
	}
	return foldContains(contact.FirstName, query) ||
		foldContains(contact.LastName, query) ||
		foldContains(contact.Email, query)
}
