package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/cabletrack/internal/ledger/domain"
	"github.com/smallbiznis/cabletrack/internal/providers/pdf"
	ticketdomain "github.com/smallbiznis/cabletrack/internal/ticket/domain"
)

// ticketItemRequest keeps quantity raw so "3", 3 and "three" all reach
// item validation and get the same messages.
type ticketItemRequest struct {
	CableType   string          `json:"cable_type"`
	CableLength string          `json:"cable_length"`
	Quantity    json.RawMessage `json:"quantity"`
}

type createTicketRequest struct {
	AssignedToID json.RawMessage     `json:"assigned_to_id" binding:"required"`
	Items        []ticketItemRequest `json:"items" binding:"required"`
	Location     *string             `json:"location"`
	Notes        *string             `json:"notes"`
	Priority     string              `json:"priority"`
}

type updateTicketRequest struct {
	Status          *string `json:"status"`
	RejectionReason *string `json:"rejection_reason"`
}

type rejectLinkRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CreateTicket(c *gin.Context) {
	var req createTicketRequest
	if err := bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	assignee, err := strconv.ParseInt(rawScalar(req.AssignedToID), 10, 64)
	if err != nil {
		AbortWithError(c, newValidationError("assigned_to_id", "invalid_assigned_to_id", "assigned_to_id must be an integer"))
		return
	}

	ticket, err := s.ticketSvc.Create(c.Request.Context(), currentUser(c), ticketdomain.CreateRequest{
		AssignedToID: assignee,
		Items:        toItemInputs(req.Items),
		Location:     req.Location,
		Notes:        req.Notes,
		Priority:     req.Priority,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Ticket created", "ticket": ticket})
}

func (s *Server) ListTickets(c *gin.Context) {
	assignedTo, err := parseOptionalInt64(c.Query("assigned_to_id"))
	if err != nil {
		AbortWithError(c, newValidationError("assigned_to_id", "invalid_assigned_to_id", "assigned_to_id must be an integer"))
		return
	}
	createdBy, err := parseOptionalInt64(c.Query("created_by_id"))
	if err != nil {
		AbortWithError(c, newValidationError("created_by_id", "invalid_created_by_id", "created_by_id must be an integer"))
		return
	}

	tickets, err := s.ticketSvc.List(c.Request.Context(), ticketdomain.ListFilter{
		IncludeDeleted: queryFlag(c.Query("include_deleted")),
		Status:         c.Query("status"),
		AssignedToID:   assignedTo,
		CreatedByID:    createdBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tickets)
}

func (s *Server) GetTicket(c *gin.Context) {
	id, ok := parseIDParam(c.Param("id"))
	if !ok {
		AbortWithError(c, ticketdomain.ErrNotFound)
		return
	}

	ticket, err := s.ticketSvc.Get(c.Request.Context(), id, queryFlag(c.Query("include_deleted")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (s *Server) UpdateTicket(c *gin.Context) {
	id, ok := parseIDParam(c.Param("id"))
	if !ok {
		AbortWithError(c, ticketdomain.ErrNotFound)
		return
	}

	var req updateTicketRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	ticket, err := s.ticketSvc.Update(c.Request.Context(), currentUser(c), id, ticketdomain.UpdateRequest{
		Status:          req.Status,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ticket updated", "ticket": ticket})
}

func (s *Server) DeleteTicket(c *gin.Context) {
	id, ok := parseIDParam(c.Param("id"))
	if !ok {
		AbortWithError(c, ticketdomain.ErrNotFound)
		return
	}

	ticket, err := s.ticketSvc.SoftDelete(c.Request.Context(), currentUser(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ticket archived", "status": ticket.Status})
}

func (s *Server) RestoreTicket(c *gin.Context) {
	id, ok := parseIDParam(c.Param("id"))
	if !ok {
		AbortWithError(c, ticketdomain.ErrNotFound)
		return
	}

	ticket, err := s.ticketSvc.Restore(c.Request.Context(), currentUser(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ticket restored", "ticket": ticket})
}

func (s *Server) PurgeTicket(c *gin.Context) {
	id, ok := parseIDParam(c.Param("id"))
	if !ok {
		AbortWithError(c, ticketdomain.ErrNotFound)
		return
	}

	if err := s.ticketSvc.Purge(c.Request.Context(), currentUser(c), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ticket permanently deleted"})
}

func (s *Server) ApproveTicketViaToken(c *gin.Context) {
	id, ok := parseIDParam(c.Param("id"))
	if !ok {
		AbortWithError(c, ticketdomain.ErrNotFound)
		return
	}

	res, err := s.ticketSvc.ApproveViaToken(c.Request.Context(), id, c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if res.AlreadyProcessed {
		respondAlreadyProcessed(c, res.Ticket)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ticket approved successfully!", "ticket": res.Ticket})
}

func (s *Server) RejectTicketViaToken(c *gin.Context) {
	id, ok := parseIDParam(c.Param("id"))
	if !ok {
		AbortWithError(c, ticketdomain.ErrNotFound)
		return
	}

	reason := strings.TrimSpace(c.Query("reason"))
	if reason == "" && c.Request.ContentLength != 0 {
		var body rejectLinkRequest
		if err := c.ShouldBindJSON(&body); err == nil {
			reason = strings.TrimSpace(body.Reason)
		}
	}

	res, err := s.ticketSvc.RejectViaToken(c.Request.Context(), id, c.Param("token"), reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if res.AlreadyProcessed {
		respondAlreadyProcessed(c, res.Ticket)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ticket rejected", "ticket": res.Ticket})
}

func (s *Server) ListTicketNotifications(c *gin.Context) {
	id, ok := parseIDParam(c.Param("id"))
	if !ok {
		AbortWithError(c, ticketdomain.ErrNotFound)
		return
	}

	if _, err := s.ticketSvc.Get(c.Request.Context(), id, true); err != nil {
		AbortWithError(c, err)
		return
	}
	rows, err := s.notificationSvc.ListByTicket(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// TicketPickList renders the ticket's items as a printable PDF.
func (s *Server) TicketPickList(c *gin.Context) {
	id, ok := parseIDParam(c.Param("id"))
	if !ok {
		AbortWithError(c, ticketdomain.ErrNotFound)
		return
	}
	if s.pdfProvider == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	ticket, err := s.ticketSvc.Get(c.Request.Context(), id, false)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := pickListData(ticket)
	r, err := s.pdfProvider.GeneratePickList(c.Request.Context(), data)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	doc, err := io.ReadAll(r)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, data.FileName()))
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) DashboardStats(c *gin.Context) {
	stats, err := s.ticketSvc.Stats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func respondAlreadyProcessed(c *gin.Context, ticket *ticketdomain.Ticket) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Ticket already processed",
		"status":  ticket.Status,
		"ticket":  ticket,
	})
}

func pickListData(ticket *ticketdomain.Ticket) pdf.PickListData {
	data := pdf.PickListData{
		TicketID:  ticket.ID,
		Status:    string(ticket.Status),
		Priority:  string(ticket.Priority),
		CreatedAt: ticket.CreatedAt.UTC().Format("2006-01-02 15:04 MST"),
	}
	if ticket.CreatedBy != nil {
		data.RequestedBy = ticket.CreatedBy.Username
	}
	if ticket.AssignedTo != nil {
		data.AssignedTo = ticket.AssignedTo.Username
	}
	if ticket.Location != nil {
		data.Location = *ticket.Location
	}
	if ticket.Notes != nil {
		data.Notes = *ticket.Notes
	}
	for _, item := range ticket.Items {
		data.Items = append(data.Items, pdf.PickListItem{
			CableType:   item.CableType,
			CableLength: item.CableLength,
			Quantity:    item.Quantity,
		})
	}
	return data
}

func toItemInputs(items []ticketItemRequest) []ledgerdomain.ItemInput {
	out := make([]ledgerdomain.ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, ledgerdomain.ItemInput{
			CableType:   item.CableType,
			CableLength: item.CableLength,
			Quantity:    rawScalar(item.Quantity),
		})
	}
	return out
}

// rawScalar renders a JSON string or number as plain text. null and
// missing values become "".
func rawScalar(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return trimmed
}
