package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/diaryprint/internal/controller"
	"github.com/orrn/diaryprint/internal/core"
)

type PrintService interface {
	PrintDiary(ctx context.Context, req controller.PrintRequest) (*controller.PrintResult, error)
	GetPrintStatus(ctx context.Context, jobID string) (*core.PrintJob, error)
	GetPrinterStatus(ctx context.Context) core.PrinterStatusReport
	HandlePrintComplete(ctx context.Context, notice core.CompletionNotice) error
}

type SubmitPrintRequest struct {
	DiaryID     string `json:"diaryId" binding:"required"`
	UserID      string `json:"userId" binding:"required"`
	PageNumbers []int  `json:"pageNumbers"`
}

type SubmitPrintResponse struct {
	Success    bool           `json:"success"`
	JobID      string         `json:"jobId"`
	Status     core.JobStatus `json:"status"`
	TotalPages int            `json:"totalPages"`
}

type JobStatusResponse struct {
	Success bool           `json:"success"`
	Data    *core.PrintJob `json:"data"`
}

type PrinterStatusResponse struct {
	Success bool                     `json:"success"`
	Data    core.PrinterStatusReport `json:"data"`
}

type PrintCompleteRequest struct {
	JobID   string `json:"jobId" binding:"required"`
	Success *bool  `json:"success" binding:"required"`
	Error   string `json:"error"`
}

type AckResponse struct {
	Success bool `json:"success"`
}

type PrintHandler struct {
	service PrintService
	logger  *slog.Logger
}

func NewPrintHandler(service PrintService, logger *slog.Logger) *PrintHandler {
	return &PrintHandler{service: service, logger: logger}
}

func (h *PrintHandler) SubmitPrint(c *gin.Context) {
	var req SubmitPrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.service.PrintDiary(c.Request.Context(), controller.PrintRequest{
		DiaryID:     req.DiaryID,
		UserID:      req.UserID,
		PageNumbers: req.PageNumbers,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, SubmitPrintResponse{
		Success:    true,
		JobID:      res.JobID,
		Status:     res.Status,
		TotalPages: res.TotalPages,
	})
}

func (h *PrintHandler) GetPrintStatus(c *gin.Context) {
	job, err := h.service.GetPrintStatus(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, JobStatusResponse{Success: true, Data: job})
}

// GetPrinterStatus always answers 200; an unreachable print server shows
// up as online=false in the payload.
func (h *PrintHandler) GetPrinterStatus(c *gin.Context) {
	c.JSON(http.StatusOK, PrinterStatusResponse{
		Success: true,
		Data:    h.service.GetPrinterStatus(c.Request.Context()),
	})
}

func (h *PrintHandler) PrintComplete(c *gin.Context) {
	var req PrintCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	err := h.service.HandlePrintComplete(c.Request.Context(), core.CompletionNotice{
		JobID:   req.JobID,
		Success: *req.Success,
		Error:   req.Error,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, AckResponse{Success: true})
}

// RegisterPrintRoutes mounts the controller API. webhookAuth guards the
// completion callback.
func RegisterPrintRoutes(r *gin.RouterGroup, h *PrintHandler, webhookAuth gin.HandlerFunc) {
	r.POST("/print", h.SubmitPrint)
	r.GET("/print/status/:jobId", h.GetPrintStatus)
	r.GET("/printer/status", h.GetPrinterStatus)
	r.POST("/print/complete", webhookAuth, h.PrintComplete)
}
