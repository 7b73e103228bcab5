package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/eaglebank/wallet/shared/cqrs"
	"github.com/eaglebank/wallet/shared/middleware"
	"github.com/eaglebank/wallet/shared/models"
	"github.com/eaglebank/wallet/transaction-service/internal/command"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// IdempotencyKeyHeader lets clients retry a money movement safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// TransferCommander defines the write-side operations used by TransferHandler.
type TransferCommander interface {
	Transfer(context.Context, cqrs.TransferCommand) (*command.Result, error)
	TopUp(context.Context, cqrs.TopUpCommand) (*command.Result, error)
	RetrySaga(context.Context, cqrs.RetrySagaCommand) (*models.Saga, error)
}

// TransferQuerier defines the read-side operations used by TransferHandler.
type TransferQuerier interface {
	ListTransfers(context.Context, cqrs.ListTransfersQuery) ([]models.TransferView, error)
	GetTransfer(context.Context, cqrs.GetTransferQuery) (*models.TransferView, error)
	ListSagas(context.Context, cqrs.ListSagasQuery) ([]models.SagaView, error)
}

type TransferHandler struct {
	commands TransferCommander
	queries  TransferQuerier
}

// Amounts are checked by the orchestrator so that a missing sender ledger is
// reported ahead of a bad amount.
type TransferRequest struct {
	ReceiverIdentifier string          `json:"receiver_identifier" validate:"required,max=32"`
	Amount             decimal.Decimal `json:"amount"`
	Note               string          `json:"note" validate:"max=140"`
}

type TopUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type idempotencyHeader struct {
	Key string `validate:"max=128"`
}

type ListSagasResponse struct {
	Sagas []models.SagaView `json:"sagas"`
}

func NewTransferHandler(commands TransferCommander, queries TransferQuerier) *TransferHandler {
	return &TransferHandler{commands: commands, queries: queries}
}

func (h *TransferHandler) CreateTransfer(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	key := c.GetHeader(IdempotencyKeyHeader)
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}
	if validationErrors := middleware.ValidateRequest(idempotencyHeader{Key: key}); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	result, err := h.commands.Transfer(c.Request.Context(), cqrs.TransferCommand{
		SenderOwnerID:      userID,
		ReceiverIdentifier: req.ReceiverIdentifier,
		Amount:             req.Amount,
		Note:               req.Note,
		IdempotencyKey:     key,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	view := models.TransferResultView{
		TransferID: result.TransferID,
		Status:     string(models.StatusSuccess),
		Amount:     result.Amount.StringFixed(2),
		CreatedAt:  result.CreatedAt,
	}
	switch result.Outcome {
	case command.OutcomeCompleted:
		c.JSON(http.StatusCreated, view)
	case command.OutcomeRecordPending:
		view.RecordPending = true
		c.JSON(http.StatusAccepted, view)
	default:
		view.Status = string(models.StatusPending)
		c.JSON(http.StatusAccepted, view)
	}
}

func (h *TransferHandler) TopUp(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	key := c.GetHeader(IdempotencyKeyHeader)
	if validationErrors := middleware.ValidateRequest(idempotencyHeader{Key: key}); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	result, err := h.commands.TopUp(c.Request.Context(), cqrs.TopUpCommand{
		OwnerID:        userID,
		Amount:         req.Amount,
		IdempotencyKey: key,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}

	view := models.TopUpView{TransferID: result.TransferID, AccountID: result.AccountID}
	if result.NewBalance != nil {
		view.NewBalance = result.NewBalance.StringFixed(2)
	}
	switch result.Outcome {
	case command.OutcomeCompleted:
		c.JSON(http.StatusOK, view)
	case command.OutcomeRecordPending:
		view.RecordPending = true
		c.JSON(http.StatusAccepted, view)
	default:
		view.Status = string(models.StatusPending)
		c.JSON(http.StatusAccepted, view)
	}
}

func (h *TransferHandler) ListTransfers(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	views, err := h.queries.ListTransfers(c.Request.Context(), cqrs.ListTransfersQuery{OwnerID: userID})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	// The history is a bare array, empty rather than null.
	if views == nil {
		views = []models.TransferView{}
	}
	c.JSON(http.StatusOK, views)
}

func (h *TransferHandler) GetTransfer(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	view, err := h.queries.GetTransfer(c.Request.Context(), cqrs.GetTransferQuery{
		TransferID: c.Param("transferId"),
		OwnerID:    userID,
	})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListSagas serves the operator view of unfinished sagas.
func (h *TransferHandler) ListSagas(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	views, err := h.queries.ListSagas(c.Request.Context(), cqrs.ListSagasQuery{State: c.Query("state"), Limit: limit})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListSagasResponse{Sagas: views})
}

func (h *TransferHandler) RetrySaga(c *gin.Context) {
	saga, err := h.commands.RetrySaga(c.Request.Context(), cqrs.RetrySagaCommand{TransferID: c.Param("transferId")})
	if err != nil {
		middleware.RespondWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewSagaView(saga))
}

// RegisterRoutes mounts the public API, which needs the caller identity
// injected by the gateway, and the operator API under /internal, which the
// gateway never exposes.
func (h *TransferHandler) RegisterRoutes(r gin.IRouter) {
	public := r.Group("", middleware.IdentityMiddleware())
	{
		public.POST("/transfers", h.CreateTransfer)
		public.GET("/transfers", h.ListTransfers)
		public.GET("/transfers/:transferId", h.GetTransfer)
		public.POST("/topups", h.TopUp)
	}

	internal := r.Group("/internal/sagas")
	{
		internal.GET("", h.ListSagas)
		internal.POST("/:transferId/retry", h.RetrySaga)
	}
}
