package domain

// TicketCreated is published after a new ticket commits.
type TicketCreated struct {
	Ticket Ticket
}

// TicketStatusChanged is published after a notifying status change commits.
type TicketStatusChanged struct {
	Ticket Ticket
	From   Status
	To     Status
}
