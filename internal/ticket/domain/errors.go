package domain

import "errors"

var (
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidTransition  = errors.New("invalid_status_transition")
	ErrInvalidPriority    = errors.New("invalid_priority")
	ErrInvalidAssignee    = errors.New("invalid_assignee")
	ErrInvalidTicketID    = errors.New("invalid_ticket_id")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrNotFound           = errors.New("ticket_not_found")
	ErrDeleted            = errors.New("ticket_deleted")
	ErrAlreadyDeleted     = errors.New("ticket_already_deleted")
	ErrNotDeleted         = errors.New("ticket_not_deleted")
	ErrNotArchived        = errors.New("ticket_not_archived")
	ErrConcurrentUpdate   = errors.New("ticket_concurrent_update")
	ErrInvalidToken       = errors.New("invalid_approval_token")
	ErrForbiddenApproval  = errors.New("forbidden_approval_state")
	ErrForbiddenWork      = errors.New("forbidden_work_state")
	ErrForbiddenRejection = errors.New("forbidden_rejection_reason")
	ErrForbiddenDelete    = errors.New("forbidden_ticket_delete")
	ErrForbiddenRestore   = errors.New("forbidden_ticket_restore")
	ErrForbiddenPurge     = errors.New("forbidden_ticket_purge")
	ErrLedgerWriteFailed  = errors.New("ledger_write_failed")
	ErrTokenGeneration    = errors.New("approval_token_generation_failed")
)
