package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qcmdesk/qcmdesk-backend/internal/model"
	"github.com/qcmdesk/qcmdesk-backend/internal/repository"
	"github.com/qcmdesk/qcmdesk-backend/internal/response"
	"github.com/qcmdesk/qcmdesk-backend/internal/validator"
)

// BranchHandler handles branch (filière) listing and creation.
type BranchHandler struct {
	userRepo *repository.UserRepository
}

// NewBranchHandler creates a new BranchHandler.
func NewBranchHandler(userRepo *repository.UserRepository) *BranchHandler {
	return &BranchHandler{userRepo: userRepo}
}

type createBranchRequest struct {
	Name string `json:"name" binding:"required,min=2,max=100"`
}

// List godoc
// GET /api/v1/professor/branches
func (h *BranchHandler) List(c *gin.Context) {
	branches, err := h.userRepo.ListBranches(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"branches": branches})
}

// Create godoc
// POST /api/v1/professor/branches
func (h *BranchHandler) Create(c *gin.Context) {
	var req createBranchRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	branch := &model.Branch{Name: req.Name}
	if err := h.userRepo.CreateBranch(c.Request.Context(), branch); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"branch": branch})
}
