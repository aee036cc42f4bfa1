// Package controller exposes the judge engine over HTTP.
package controller

import (
	"strings"

	"lessonjudge/internal/common/http/middleware"
	"lessonjudge/internal/judge/model"
	"lessonjudge/internal/judge/service"
	appErr "lessonjudge/pkg/errors"
	"lessonjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// JudgeController handles judge requests.
type JudgeController struct {
	svc *service.Service
}

// NewJudgeController creates a new controller.
func NewJudgeController(svc *service.Service) *JudgeController {
	return &JudgeController{svc: svc}
}

// Run evaluates a submission against its test cases.
func (h *JudgeController) Run(c *gin.Context) {
	var req model.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.StepID) == "" {
		response.BadRequest(c, "stepId is required")
		return
	}
	if strings.TrimSpace(req.SourceCode) == "" {
		response.ErrorWithCode(c, appErr.CodeEmpty, "")
		return
	}
	if req.UserID == "" {
		req.UserID = c.GetString(middleware.UserIDContextKey)
	}
	resp, err := h.svc.Run(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// Validate statically checks a submission.
func (h *JudgeController) Validate(c *gin.Context) {
	var req model.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	res, err := h.svc.Validate(c.Request.Context(), req.SourceCode, req.Language)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetStatus returns status for one run.
func (h *JudgeController) GetStatus(c *gin.Context) {
	runID := c.Param("runId")
	if runID == "" {
		response.BadRequest(c, "Invalid run id")
		return
	}
	status, err := h.svc.GetStatus(c.Request.Context(), runID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}
