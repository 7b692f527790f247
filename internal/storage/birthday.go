package storage

import (
	"sort"
	"time"

	"contactdesk/internal/models"
)

// DefaultBirthdayWindowDays is the lookahead applied when a birthday query
// does not specify one.
const DefaultBirthdayWindowDays = 7

// filterUpcomingBirthdays returns the contacts whose next birthday falls
// within the coming number of days, today included. Zero days matches today
// only. Results are ordered by the next occurrence, earliest first.
func filterUpcomingBirthdays(contacts []models.Contact, days int, now time.Time) []models.Contact {
	if days < 0 {
		days = DefaultBirthdayWindowDays
	}
	today := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	cutoff := today.AddDate(0, 0, days)

	type upcoming struct {
		contact models.Contact
		next    time.Time
	}
	matched := make([]upcoming, 0, len(contacts))
	for _, contact := range contacts {
		if contact.Birthday.IsZero() {
			continue
		}
		next := contact.Birthday.NextOccurrence(now)
		if next.Before(today) || next.After(cutoff) {
			continue
		}
		matched = append(matched, upcoming{contact: contact, next: next})
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].next.Equal(matched[j].next) {
			return matched[i].next.Before(matched[j].next)
		}
		return matched[i].contact.ID < matched[j].contact.ID
	})
	result := make([]models.Contact, 0, len(matched))
	for _, entry := range matched {
		result = append(result, entry.contact)
	}
	return result
}
