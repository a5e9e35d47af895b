package models

import (
	"time"

	"github.com/google/uuid"
)

// Address of a listed property
type Address struct {
	Street   string `json:"street" db:"street"`
	Suburb   string `json:"suburb" db:"suburb"`
	State    string `json:"state" db:"state"`
	Postcode string `json:"postcode" db:"postcode"`
}

// Short returns "street, suburb"
func (a Address) Short() string {
	return a.Street + ", " + a.Suburb
}

// Full returns "street, suburb, state postcode"
func (a Address) Full() string {
	return a.Street + ", " + a.Suburb + ", " + a.State + " " + a.Postcode
}

// Property is a listing that customers can request viewings for
type Property struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Description string     `json:"description" db:"description"`
	Address     Address    `json:"address"`
	AgentID     *uuid.UUID `json:"agentId,omitempty" db:"agent_id"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
}
