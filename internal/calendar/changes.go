package calendar

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PendingChange is an unsaved edit to one appointment. Status is empty
// unless the agent changed it in this session.
type PendingChange struct {
	AppointmentID uuid.UUID `json:"appointmentId"`
	NewDateTime   time.Time `json:"newDateTime"`
	Status        string    `json:"status,omitempty"`
}

func (c PendingChange) equal(o PendingChange) bool {
	return c.AppointmentID == o.AppointmentID && c.NewDateTime.Equal(o.NewDateTime) && c.Status == o.Status
}

// ChangeSet holds at most one PendingChange per appointment, in the order
// appointments were first edited.
type ChangeSet struct {
	order []uuid.UUID
	byID  map[uuid.UUID]PendingChange
}

func NewChangeSet() *ChangeSet {
	return &ChangeSet{byID: map[uuid.UUID]PendingChange{}}
}

// RecordMove sets a new time for the appointment. An existing entry keeps
// its position and any status already chosen.
func (c *ChangeSet) RecordMove(appointmentID uuid.UUID, at time.Time) {
	if prev, ok := c.byID[appointmentID]; ok {
		prev.NewDateTime = at
		c.byID[appointmentID] = prev
		return
	}
	c.append(PendingChange{AppointmentID: appointmentID, NewDateTime: at})
}

// RecordStatus sets a new status. An existing entry keeps its time; a new
// one takes start.
func (c *ChangeSet) RecordStatus(appointmentID uuid.UUID, start time.Time, status string) {
	if prev, ok := c.byID[appointmentID]; ok {
		prev.Status = status
		c.byID[appointmentID] = prev
		return
	}
	c.append(PendingChange{AppointmentID: appointmentID, NewDateTime: start, Status: status})
}

func (c *ChangeSet) append(ch PendingChange) {
	c.order = append(c.order, ch.AppointmentID)
	c.byID[ch.AppointmentID] = ch
}

func (c *ChangeSet) Get(appointmentID uuid.UUID) (PendingChange, bool) {
	ch, ok := c.byID[appointmentID]
	return ch, ok
}

func (c *ChangeSet) Remove(appointmentID uuid.UUID) {
	if _, ok := c.byID[appointmentID]; !ok {
		return
	}
	delete(c.byID, appointmentID)
	for i, id := range c.order {
		if id == appointmentID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// RemoveIfUnchanged drops the entry only if it still equals ch
func (c *ChangeSet) RemoveIfUnchanged(ch PendingChange) bool {
	cur, ok := c.byID[ch.AppointmentID]
	if !ok || !cur.equal(ch) {
		return false
	}
	c.Remove(ch.AppointmentID)
	return true
}

func (c *ChangeSet) Len() int { return len(c.order) }

// List returns the changes in recording order
func (c *ChangeSet) List() []PendingChange {
	out := make([]PendingChange, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

func (c *ChangeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.List())
}

func (c *ChangeSet) UnmarshalJSON(data []byte) error {
	var list []PendingChange
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*c = ChangeSet{byID: make(map[uuid.UUID]PendingChange, len(list))}
	for _, ch := range list {
		if _, dup := c.byID[ch.AppointmentID]; dup {
			c.byID[ch.AppointmentID] = ch
			continue
		}
		c.append(ch)
	}
	return nil
}
