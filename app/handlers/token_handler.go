package handlers

import (
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/amirphl/token-registry/app/dto"
	businessflow "github.com/amirphl/token-registry/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// TokenHandlerInterface defines the contract for token handlers
type TokenHandlerInterface interface {
	List(c fiber.Ctx) error
	ListByCreator(c fiber.Ctx) error
	Create(c fiber.Ctx) error
	Export(c fiber.Ctx) error
}

// TokenHandler handles token registry HTTP requests
type TokenHandler struct {
	flow           businessflow.TokenFlow
	validator      *validator.Validate
	requestTimeout time.Duration
}

func (h *TokenHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *TokenHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(flow businessflow.TokenFlow, requestTimeout time.Duration) *TokenHandler {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &TokenHandler{
		flow:           flow,
		validator:      newValidator(),
		requestTimeout: requestTimeout,
	}
}

// List returns every token, newest first. A creator query parameter narrows the list.
// @Router /api/v1/tokens [get]
func (h *TokenHandler) List(c fiber.Ctx) error {
	if creator := c.Query("creator"); creator != "" {
		return h.listByCreator(c, creator)
	}

	ctx, cancel := createRequestContext(h.requestTimeout)
	defer cancel()

	tokens, err := h.flow.ListAll(ctx, clientMetadata(c))
	if err != nil {
		return h.flowError(c, err, "Failed to fetch tokens")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Tokens retrieved successfully", dto.ListTokensResponse{
		Tokens: tokens,
		Total:  len(tokens),
	})
}

// ListByCreator returns the tokens of one creator, matched case-insensitively
// @Router /api/v1/creators/{creator}/tokens [get]
func (h *TokenHandler) ListByCreator(c fiber.Ctx) error {
	creator := c.Params("creator")
	if unescaped, err := url.PathUnescape(creator); err == nil {
		creator = unescaped
	}
	return h.listByCreator(c, creator)
}

func (h *TokenHandler) listByCreator(c fiber.Ctx, creator string) error {
	ctx, cancel := createRequestContext(h.requestTimeout)
	defer cancel()

	tokens, err := h.flow.ListByCreator(ctx, creator, clientMetadata(c))
	if err != nil {
		return h.flowError(c, err, "Failed to fetch tokens by creator")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Tokens retrieved successfully", dto.ListTokensResponse{
		Tokens: tokens,
		Total:  len(tokens),
	})
}

// Create registers a new token
// @Router /api/v1/tokens [post]
func (h *TokenHandler) Create(c fiber.Ctx) error {
	var req dto.CreateTokenRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Symbol = strings.TrimSpace(req.Symbol)
	req.TotalSupply = strings.TrimSpace(req.TotalSupply)
	req.Creator = strings.TrimSpace(req.Creator)

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", businessflow.CodeValidation, validationMessages(err))
	}

	ctx, cancel := createRequestContext(h.requestTimeout)
	defer cancel()

	token, err := h.flow.Create(ctx, &req, clientMetadata(c))
	if err != nil {
		return h.flowError(c, err, "Failed to add token")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Token created successfully", token)
}

// Export returns all tokens as an xlsx workbook
// @Router /api/v1/tokens/export [get]
func (h *TokenHandler) Export(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(h.requestTimeout)
	defer cancel()

	filename, data, err := h.flow.ExportTokens(ctx, clientMetadata(c))
	if err != nil {
		return h.flowError(c, err, "Failed to export tokens")
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

// flowError maps a business error to status and code. Anything unrecognized is an opaque 500.
func (h *TokenHandler) flowError(c fiber.Ctx, err error, fallback string) error {
	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		switch {
		case businessflow.IsValidationError(err):
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", be.Code, []string{be.Message})
		case businessflow.IsDuplicateSymbol(err):
			return h.ErrorResponse(c, fiber.StatusConflict, be.Message, be.Code, nil)
		case businessflow.IsQueryFailed(err), businessflow.IsCreateFailed(err), businessflow.IsExportFailed(err):
			return h.ErrorResponse(c, fiber.StatusInternalServerError, be.Message, be.Code, nil)
		}
	}

	log.Println("Token request failed:", err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallback, "INTERNAL_ERROR", nil)
}
