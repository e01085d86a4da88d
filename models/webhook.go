// ABOUTME: Identity provider webhook event models
// ABOUTME: Describes user lifecycle events delivered by the identity provider

package models

import "strings"

// WebhookEventType names a user lifecycle event
type WebhookEventType string

const (
	EventUserCreated WebhookEventType = "user.created"
	EventUserUpdated WebhookEventType = "user.updated"
	EventUserDeleted WebhookEventType = "user.deleted"
)

// WebhookEvent is a verified identity provider notification
type WebhookEvent struct {
	Type WebhookEventType `json:"type"`
	Data IdentityUser     `json:"data"`
}

// EmailAddress is one of the identity provider's addresses for a user
type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// IdentityUser is the user payload carried by webhook events
type IdentityUser struct {
	ID                    string         `json:"id"`
	EmailAddresses        []EmailAddress `json:"email_addresses"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	FirstName             string         `json:"first_name"`
	LastName              string         `json:"last_name"`
	ImageURL              string         `json:"image_url"`
	PublicMetadata        struct {
		Role string `json:"role"`
	} `json:"public_metadata"`
	Deleted bool `json:"deleted"`
}

// PrimaryEmail returns the primary address, falling back to the first one.
func (u IdentityUser) PrimaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID != "" && e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// DisplayName joins first and last name
func (u IdentityUser) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
