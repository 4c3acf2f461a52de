package services

import (
	"errors"

	"github.com/stockalert/stockalert/internal/database"
)

// ErrNoRecipient is returned when no user is eligible to receive alerts
var ErrNoRecipient = errors.New("no eligible recipient")

// SelectRecipient picks the single recipient of a pass from eligible users.
// The designated policy falls back to the lowest id when the designated user is not eligible.
func SelectRecipient(eligible []Recipient, policy database.RecipientPolicy, designatedID *uint) (Recipient, error) {
	if len(eligible) == 0 {
		return Recipient{}, ErrNoRecipient
	}

	if policy == database.RecipientPolicyDesignated && designatedID != nil {
		for _, r := range eligible {
			if r.ID == *designatedID {
				return r, nil
			}
		}
	}

	lowest := eligible[0]
	for _, r := range eligible[1:] {
		if r.ID < lowest.ID {
			lowest = r
		}
	}
	return lowest, nil
}
