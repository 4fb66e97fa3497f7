package entity

import (
	"errors"
	"time"
)

// Bill validation errors.
var (
	ErrEmptyBillKey = errors.New("bill key cannot be empty")
)

// DefaultBillStatus is the status assumed for bills that have none recorded.
const DefaultBillStatus = "pending"

// BillAction is one entry in a bill's ordered action history, as recorded
// by the upstream scraper.
type BillAction struct {
	Date string `json:"date"`
	Text string `json:"text"`
	Code int    `json:"action_code"`
}

// Bill is a source record owned by the document store. The extraction core
// reads bills, mutates only the derived event-identifier list and status,
// and writes them back. It never deletes a bill.
type Bill struct {
	key       string
	title     string
	body      string
	status    string
	actions   []BillAction
	eventIDs  []string
	createdAt time.Time
	updatedAt time.Time
}

// NewBill creates a new Bill entity.
func NewBill(key, title, body string) (*Bill, error) {
	if key == "" {
		return nil, ErrEmptyBillKey
	}
	now := time.Now()
	return &Bill{
		key:       key,
		title:     title,
		body:      body,
		status:    DefaultBillStatus,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// RestoreBill creates a Bill entity from stored data.
func RestoreBill(
	key, title, body, status string,
	actions []BillAction,
	eventIDs []string,
	createdAt, updatedAt time.Time,
) *Bill {
	return &Bill{
		key:       key,
		title:     title,
		body:      body,
		status:    status,
		actions:   actions,
		eventIDs:  eventIDs,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// Key returns the bill's stable identifier.
func (b *Bill) Key() string {
	return b.key
}

// Title returns the bill title.
func (b *Bill) Title() string {
	return b.title
}

// Body returns the bill's text body.
func (b *Bill) Body() string {
	return b.body
}

// HasBody returns true if the bill carries a non-empty text body.
func (b *Bill) HasBody() bool {
	return b.body != ""
}

// Status returns the bill status, falling back to the default when none is
// recorded.
func (b *Bill) Status() string {
	if b.status == "" {
		return DefaultBillStatus
	}
	return b.status
}

// SetStatus updates the bill status.
func (b *Bill) SetStatus(status string) {
	b.status = status
	b.updatedAt = time.Now()
}

// Actions returns the ordered action history.
func (b *Bill) Actions() []BillAction {
	return b.actions
}

// LatestAction returns the last entry of the action history, or false when
// the history is empty.
func (b *Bill) LatestAction() (BillAction, bool) {
	if len(b.actions) == 0 {
		return BillAction{}, false
	}
	return b.actions[len(b.actions)-1], true
}

// EventIDs returns the identifiers of policy events derived from this bill.
func (b *Bill) EventIDs() []string {
	return b.eventIDs
}

// AppendEventIDs adds newly inserted policy-event identifiers.
func (b *Bill) AppendEventIDs(ids ...string) {
	if len(ids) == 0 {
		return
	}
	b.eventIDs = append(b.eventIDs, ids...)
	b.updatedAt = time.Now()
}

// ClearEventIDs drops all derived event identifiers, used when a bill is
// resubmitted as an update and its events are regenerated.
func (b *Bill) ClearEventIDs() {
	b.eventIDs = nil
	b.updatedAt = time.Now()
}

// CreatedAt returns the creation timestamp.
func (b *Bill) CreatedAt() time.Time {
	return b.createdAt
}

// UpdatedAt returns the last update timestamp.
func (b *Bill) UpdatedAt() time.Time {
	return b.updatedAt
}

// Validate ensures the bill entity is in a valid state.
func (b *Bill) Validate() error {
	if b.key == "" {
		return ErrEmptyBillKey
	}
	return nil
}
