package core

import "time"

// Collection names, shared by persistence keys, change events and exports.
const (
	CollectionClients   = "clients"
	CollectionProjects  = "projects"
	CollectionTime      = "time_entries"
	CollectionExpenses  = "expenses"
	CollectionInvoices  = "invoices"
	CollectionRates     = "rates"
	CollectionRecurring = "recurring_expenses"
)

// Collections lists every persisted collection.
var Collections = []string{
	CollectionClients,
	CollectionProjects,
	CollectionTime,
	CollectionExpenses,
	CollectionInvoices,
	CollectionRates,
	CollectionRecurring,
}

type ChangeOp string

const (
	OpCreated ChangeOp = "created"
	OpUpdated ChangeOp = "updated"
	OpDeleted ChangeOp = "deleted"
)

// ChangeEvent announces that one record of a collection changed. It carries
// no payload; consumers read the current state back from the store.
type ChangeEvent struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id,omitempty"`
	Op         ChangeOp  `json:"op"`
	Timestamp  time.Time `json:"timestamp"`
}
