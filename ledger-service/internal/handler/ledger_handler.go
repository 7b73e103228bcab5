package handler

import (
	"context"
	"net/http"

	"github.com/eaglebank/wallet/shared/apperr"
	"github.com/eaglebank/wallet/shared/cqrs"
	"github.com/eaglebank/wallet/shared/middleware"
	"github.com/eaglebank/wallet/shared/models"
	"github.com/eaglebank/wallet/shared/utils"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// LedgerCommander defines the write-side operations used by LedgerHandler.
type LedgerCommander interface {
	CreateLedger(context.Context, cqrs.CreateLedgerCommand) (*models.Ledger, error)
	Debit(context.Context, cqrs.MutateBalanceCommand) (*models.Ledger, error)
	Credit(context.Context, cqrs.MutateBalanceCommand) (*models.Ledger, error)
	Void(context.Context, cqrs.VoidMutationCommand) (*models.LedgerMutation, error)
	CloseLedger(context.Context, cqrs.CloseLedgerCommand) (*models.Ledger, error)
}

// LedgerQuerier defines the read-side operations used by LedgerHandler.
type LedgerQuerier interface {
	GetLedgerByOwner(context.Context, cqrs.GetLedgerByOwnerQuery) (*models.LedgerView, error)
	GetLedger(context.Context, cqrs.GetLedgerQuery) (*models.LedgerView, error)
	GetMutation(context.Context, cqrs.GetMutationQuery) (*models.MutationView, error)
}

// LedgerHandler serves the collaborator-facing ledger API.
type LedgerHandler struct {
	commands LedgerCommander
	queries  LedgerQuerier
}

type CreateLedgerRequest struct {
	OwnerID string `json:"owner_id" validate:"required,max=64"`
}

// BalanceRequest mutates one ledger. Reference is optional for manual calls;
// the orchestrator always sends one so that retries are safe.
type BalanceRequest struct {
	Type      string          `json:"type" validate:"required,oneof=debit credit"`
	Amount    decimal.Decimal `json:"amount" validate:"money"`
	Reference string          `json:"reference" validate:"omitempty,max=128"`
}

type VoidRequest struct {
	AccountID string `json:"account_id" validate:"required"`
}

func NewLedgerHandler(commands LedgerCommander, queries LedgerQuerier) *LedgerHandler {
	return &LedgerHandler{commands: commands, queries: queries}
}

func (h *LedgerHandler) CreateLedger(c *gin.Context) {
	var req CreateLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	ledger, err := h.commands.CreateLedger(c.Request.Context(), cqrs.CreateLedgerCommand{OwnerID: req.OwnerID})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.NewLedgerView(ledger))
}

func (h *LedgerHandler) GetLedgerByOwner(c *gin.Context) {
	view, err := h.queries.GetLedgerByOwner(c.Request.Context(), cqrs.GetLedgerByOwnerQuery{OwnerID: c.Param("ownerId")})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetMyLedger returns the caller's own ledger.
func (h *LedgerHandler) GetMyLedger(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	view, err := h.queries.GetLedgerByOwner(c.Request.Context(), cqrs.GetLedgerByOwnerQuery{OwnerID: userID})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *LedgerHandler) GetLedger(c *gin.Context) {
	view, err := h.queries.GetLedger(c.Request.Context(), cqrs.GetLedgerQuery{AccountID: c.Param("accountId")})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *LedgerHandler) UpdateBalance(c *gin.Context) {
	var req BalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	cmd := cqrs.MutateBalanceCommand{
		AccountID: c.Param("accountId"),
		Amount:    req.Amount,
		Reference: req.Reference,
	}
	if cmd.Reference == "" {
		cmd.Reference = utils.GenerateID("mut")
	}

	var (
		ledger *models.Ledger
		err    error
	)
	if req.Type == string(models.MutationDebit) {
		ledger, err = h.commands.Debit(c.Request.Context(), cmd)
	} else {
		ledger, err = h.commands.Credit(c.Request.Context(), cmd)
	}
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewLedgerView(ledger))
}

func (h *LedgerHandler) VoidMutation(c *gin.Context) {
	var req VoidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	mutation, err := h.commands.Void(c.Request.Context(), cqrs.VoidMutationCommand{
		Reference: c.Param("reference"),
		AccountID: req.AccountID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewMutationView(mutation))
}

func (h *LedgerHandler) GetMutation(c *gin.Context) {
	view, err := h.queries.GetMutation(c.Request.Context(), cqrs.GetMutationQuery{Reference: c.Param("reference")})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *LedgerHandler) CloseLedger(c *gin.Context) {
	ownerID := c.Param("ownerId")
	if ownerID == "" {
		middleware.RespondWithAppError(c, apperr.ErrInvalidRequest)
		return
	}

	ledger, err := h.commands.CloseLedger(c.Request.Context(), cqrs.CloseLedgerCommand{OwnerID: ownerID})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewLedgerView(ledger))
}

// RegisterRoutes mounts the ledger API on r. Collaborator-facing routes are
// reachable only inside the service network; /ledgers/me needs the caller
// identity injected by the gateway.
func (h *LedgerHandler) RegisterRoutes(r gin.IRouter) {
	ledgers := r.Group("/ledgers")
	{
		ledgers.POST("", h.CreateLedger)
		ledgers.GET("/me", middleware.IdentityMiddleware(), h.GetMyLedger)
		ledgers.GET("/by-owner/:ownerId", h.GetLedgerByOwner)
		ledgers.DELETE("/by-owner/:ownerId", h.CloseLedger)
		ledgers.GET("/mutations/:reference", h.GetMutation)
		ledgers.POST("/mutations/:reference/void", h.VoidMutation)
		ledgers.GET("/:accountId", h.GetLedger)
		ledgers.PUT("/:accountId/balance", h.UpdateBalance)
	}
}
