package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/cabletrack/internal/audit/domain"
	"github.com/smallbiznis/cabletrack/internal/authorization"
	ledgerdomain "github.com/smallbiznis/cabletrack/internal/ledger/domain"
	receivingdomain "github.com/smallbiznis/cabletrack/internal/receiving/domain"
)

type createCableReceiptRequest struct {
	Items    []ticketItemRequest `json:"items"`
	Vendor   *string             `json:"vendor"`
	PONumber *string             `json:"po_number"`
	Notes    *string             `json:"notes"`
}

type inventoryAdjustmentRequest struct {
	CableType     string `json:"cable_type" binding:"required"`
	CableLength   string `json:"cable_length" binding:"required"`
	QuantityDelta int    `json:"quantity_delta" binding:"required,ne=0"`
	Notes         string `json:"notes"`
}

func (s *Server) CreateCableReceipt(c *gin.Context) {
	user := currentUser(c)
	err := s.authzSvc.Authorize(c.Request.Context(), user, authorization.ObjectCableReceiving, authorization.ActionCableReceivingCreate)
	if errors.Is(err, authorization.ErrForbidden) {
		AbortWithError(c, receivingdomain.ErrForbidden)
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createCableReceiptRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	receipt, err := s.receivingSvc.Receive(c.Request.Context(), user, receivingdomain.ReceiveRequest{
		Items:    toItemInputs(req.Items),
		Vendor:   req.Vendor,
		PONumber: req.PONumber,
		Notes:    req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Cable receiving recorded", "receipt": receipt})
}

func (s *Server) ListCableReceipts(c *gin.Context) {
	receipts, err := s.receivingSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipts)
}

func (s *Server) ListInventoryMovements(c *gin.Context) {
	sourceID, err := parseOptionalInt64(c.Query("source_id"))
	if err != nil {
		AbortWithError(c, newValidationError("source_id", "invalid_source_id", "source_id must be an integer"))
		return
	}

	limit := ledgerdomain.DefaultListLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be an integer"))
			return
		}
		limit = parsed
	}
	if limit < 1 {
		limit = 1
	}

	movements, err := s.ledgerSvc.List(c.Request.Context(), ledgerdomain.ListFilter{
		MovementType: c.Query("movement_type"),
		SourceType:   c.Query("source_type"),
		SourceID:     sourceID,
		Limit:        limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, movements)
}

func (s *Server) InventoryOnHand(c *gin.Context) {
	rows, err := s.ledgerSvc.OnHandSummary(c.Request.Context(), queryFlag(c.Query("include_zero")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// CreateInventoryAdjustment books a manual correction, e.g. after a stock
// count. Adjustments carry no source and are never deduplicated.
func (s *Server) CreateInventoryAdjustment(c *gin.Context) {
	var req inventoryAdjustmentRequest
	if err := bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	user := currentUser(c)
	res, err := s.ledgerSvc.Record(c.Request.Context(), []ledgerdomain.MovementInput{{
		MovementType:  ledgerdomain.MovementTypeAdjustment,
		ActorUserID:   &user.ID,
		CableType:     req.CableType,
		CableLength:   req.CableLength,
		QuantityDelta: req.QuantityDelta,
		Notes:         req.Notes,
	}})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil && len(res.Movements) > 0 {
		movement := res.Movements[0]
		_ = s.auditSvc.Record(c.Request.Context(), auditdomain.Entry{
			Action:     auditdomain.ActionInventoryAdjust,
			TargetType: "inventory_movement",
			TargetID:   strconv.FormatInt(movement.ID, 10),
			Metadata: map[string]any{
				"cable_type":     movement.CableType,
				"cable_length":   movement.CableLength,
				"quantity_delta": movement.QuantityDelta,
			},
		})
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Inventory adjusted", "movements": res.Movements})
}
