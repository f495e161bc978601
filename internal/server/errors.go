package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/cabletrack/internal/audit/domain"
	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
	"github.com/smallbiznis/cabletrack/internal/authorization"
	ledgerdomain "github.com/smallbiznis/cabletrack/internal/ledger/domain"
	receivingdomain "github.com/smallbiznis/cabletrack/internal/receiving/domain"
	ticketdomain "github.com/smallbiznis/cabletrack/internal/ticket/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

// errorClass is one row of the error table: the HTTP status, the payload
// type and the client facing message.
type errorClass struct {
	status  int
	kind    string
	message string
}

var errorTable = []struct {
	errs  []error
	class errorClass
}{
	{[]error{ErrUnauthorized, ticketdomain.ErrUnauthenticated, receivingdomain.ErrUnauthenticated, authdomain.ErrInvalidToken},
		errorClass{http.StatusUnauthorized, "unauthorized", "Authorization bearer token is required"}},
	{[]error{authdomain.ErrInvalidCredentials},
		errorClass{http.StatusUnauthorized, "unauthorized", "Invalid credentials"}},

	{[]error{ticketdomain.ErrInvalidToken},
		errorClass{http.StatusForbidden, "forbidden", "Invalid token"}},
	{[]error{ticketdomain.ErrForbiddenApproval},
		errorClass{http.StatusForbidden, "forbidden", "Only assignee or admin can set approval states"}},
	{[]error{ticketdomain.ErrForbiddenWork},
		errorClass{http.StatusForbidden, "forbidden", "Only assignee or admin can set work states"}},
	{[]error{ticketdomain.ErrForbiddenRejection},
		errorClass{http.StatusForbidden, "forbidden", "Only assignee or admin can update rejection reason"}},
	{[]error{ticketdomain.ErrForbiddenDelete},
		errorClass{http.StatusForbidden, "forbidden", "Only the ticket creator or admin can delete this ticket"}},
	{[]error{ticketdomain.ErrForbiddenRestore},
		errorClass{http.StatusForbidden, "forbidden", "Only the ticket creator or admin can restore this ticket"}},
	{[]error{ticketdomain.ErrForbiddenPurge},
		errorClass{http.StatusForbidden, "forbidden", "Only admins can permanently delete tickets"}},
	{[]error{receivingdomain.ErrForbidden},
		errorClass{http.StatusForbidden, "forbidden", "Only admins can record cable receiving"}},
	{[]error{ErrForbidden, authorization.ErrForbidden},
		errorClass{http.StatusForbidden, "forbidden", "forbidden"}},

	{[]error{ticketdomain.ErrNotFound},
		errorClass{http.StatusNotFound, "not_found", "Ticket not found"}},
	{[]error{authdomain.ErrUserNotFound},
		errorClass{http.StatusNotFound, "not_found", "User not found"}},
	{[]error{ErrNotFound, gorm.ErrRecordNotFound},
		errorClass{http.StatusNotFound, "not_found", "not found"}},

	{[]error{ticketdomain.ErrInvalidTransition},
		errorClass{http.StatusConflict, "conflict", "Invalid status transition"}},
	{[]error{ticketdomain.ErrNotDeleted},
		errorClass{http.StatusConflict, "conflict", "Ticket is not deleted"}},
	{[]error{ticketdomain.ErrNotArchived},
		errorClass{http.StatusConflict, "conflict", "Ticket must be archived before purge"}},
	{[]error{ticketdomain.ErrConcurrentUpdate},
		errorClass{http.StatusConflict, "conflict", "Ticket was changed concurrently, retry the request"}},

	{[]error{ticketdomain.ErrDeleted},
		errorClass{http.StatusGone, "gone", "Ticket was deleted"}},
	{[]error{ticketdomain.ErrAlreadyDeleted},
		errorClass{http.StatusGone, "gone", "Ticket was already deleted"}},

	{[]error{ErrRateLimited},
		errorClass{http.StatusTooManyRequests, "rate_limited", "Too many requests"}},

	{[]error{ticketdomain.ErrLedgerWriteFailed},
		errorClass{http.StatusInternalServerError, "internal_error", "Inventory ledger update failed; ticket status rolled back"}},
	{[]error{receivingdomain.ErrLedgerWriteFailed},
		errorClass{http.StatusInternalServerError, "internal_error", "Failed to write inventory ledger; receipt rolled back"}},
}

// validationMessages holds the client text for domain validation errors.
var validationMessages = map[error]string{
	ticketdomain.ErrInvalidStatus:         "Invalid status",
	ticketdomain.ErrInvalidPriority:       "priority must be one of low, medium, high",
	ticketdomain.ErrInvalidAssignee:       "assigned_to_id must reference a valid user",
	ticketdomain.ErrInvalidTicketID:       "ticket id must be an integer",
	authdomain.ErrInvalidUsername:         "username is required",
	authdomain.ErrInvalidEmail:            "email must be a valid email address",
	authdomain.ErrInvalidPassword:         "password is required",
	ledgerdomain.ErrInvalidMovementType:   "movement_type must be receipt, consumption or adjustment",
	ledgerdomain.ErrInvalidCableType:      "cable_type is required",
	ledgerdomain.ErrInvalidCableLength:    "cable_length is required",
	ledgerdomain.ErrInvalidQuantityDelta:  "quantity_delta must be a non-zero integer",
	ledgerdomain.ErrInvalidSource:         "source_type and source_id must be given together",
	ledgerdomain.ErrInvalidLimit:          "limit must be an integer",
	ledgerdomain.ErrEmptyBatch:            "at least one movement is required",
	auditdomain.ErrInvalidTimeRange:       "start_at must be before end_at",
	auditdomain.ErrInvalidAction:          "invalid action",
	authorization.ErrInvalidObject:        "invalid capability object",
	authorization.ErrInvalidAction:        "invalid capability action",
	ledgerdomain.ErrItemsRequired:         ledgerdomain.ItemErrorMessage(ledgerdomain.ErrItemsRequired),
	ledgerdomain.ErrItemFieldsRequired:    ledgerdomain.ItemErrorMessage(ledgerdomain.ErrItemFieldsRequired),
	ledgerdomain.ErrItemQuantityInteger:   ledgerdomain.ItemErrorMessage(ledgerdomain.ErrItemQuantityInteger),
	ledgerdomain.ErrItemQuantityRange:     ledgerdomain.ItemErrorMessage(ledgerdomain.ErrItemQuantityRange),
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		message := "validation error"
		if len(vErr.Errors) == 1 {
			message = vErr.Errors[0].Message
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: message,
			Errors:  vErr.Errors,
		}
	}

	if target, message, ok := domainValidationError(err); ok {
		code := target.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: message,
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: message,
				},
			},
		}
	}

	for _, row := range errorTable {
		for _, target := range row.errs {
			if errors.Is(err, target) {
				return row.class.status, errorPayload{
					Type:    row.class.kind,
					Message: row.class.message,
				}
			}
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// classifyErrorForLog feeds the request logger's error_type/error_code
// fields.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func domainValidationError(err error) (error, string, bool) {
	if errors.Is(err, ErrInvalidRequest) {
		return ErrInvalidRequest, "invalid request", true
	}
	for target, message := range validationMessages {
		if errors.Is(err, target) {
			return target, message, true
		}
	}
	return nil, "", false
}

func validationErrorField(code string) string {
	switch {
	case code == "invalid_request":
		return "request"
	case strings.HasPrefix(code, "invalid_"):
		return strings.TrimPrefix(code, "invalid_")
	case strings.HasPrefix(code, "item"):
		return "items"
	default:
		return ""
	}
}
