package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/qcmdesk/qcmdesk-backend/internal/middleware"
	"github.com/qcmdesk/qcmdesk-backend/internal/model"
	"github.com/qcmdesk/qcmdesk-backend/internal/response"
	"github.com/qcmdesk/qcmdesk-backend/internal/service"
	"github.com/qcmdesk/qcmdesk-backend/internal/validator"
)

// QCMHandler handles question set CRUD for professors.
type QCMHandler struct {
	qcmService *service.QCMService
}

// NewQCMHandler creates a new QCMHandler.
func NewQCMHandler(qcmService *service.QCMService) *QCMHandler {
	return &QCMHandler{qcmService: qcmService}
}

// Create godoc
// POST /api/v1/professor/qcms
func (h *QCMHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateQCMRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	qcm, err := h.qcmService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		if errors.Is(err, service.ErrNoCorrectFlag) {
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrValidation)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"qcm": qcm})
}

// List godoc
// GET /api/v1/professor/qcms?page=1&per_page=20
func (h *QCMHandler) List(c *gin.Context) {
	claims := middleware.GetClaims(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	qcms, total, err := h.qcmService.List(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	totalPages := (total + perPage - 1) / perPage
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"qcms": qcms}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	})
}

// Get godoc
// GET /api/v1/professor/qcms/:qcm_id
func (h *QCMHandler) Get(c *gin.Context) {
	claims := middleware.GetClaims(c)

	qcmID, err := uuid.Parse(c.Param("qcm_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	qcm, err := h.qcmService.GetByID(c.Request.Context(), qcmID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotOwner) {
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"qcm": qcm})
}

// Delete godoc
// DELETE /api/v1/professor/qcms/:qcm_id
// A QCM referenced by any session is frozen and cannot be removed.
func (h *QCMHandler) Delete(c *gin.Context) {
	claims := middleware.GetClaims(c)

	qcmID, err := uuid.Parse(c.Param("qcm_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.qcmService.Delete(c.Request.Context(), qcmID, claims.UserID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotOwner):
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		case errors.Is(err, service.ErrQCMInUse):
			response.Fail(c, http.StatusConflict, response.ErrQCMInUse)
		default:
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
