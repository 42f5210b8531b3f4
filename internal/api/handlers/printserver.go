package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/diaryprint/internal/core"
)

const (
	serverStatusOnline   = "online"
	serverStatusPrinting = "printing"
	serverStatusOffline  = "offline"
)

type PrintQueue interface {
	Enqueue(payload core.PrintPayload) (int, error)
	Snapshot() core.QueueSnapshot
	Len() int
	IsPrinting() bool
}

type PrinterChecker interface {
	CheckStatus(ctx context.Context) core.PrinterStatus
}

type PrintServerHandler struct {
	queue   PrintQueue
	printer PrinterChecker
	logger  *slog.Logger
}

func NewPrintServerHandler(queue PrintQueue, printer PrinterChecker, logger *slog.Logger) *PrintServerHandler {
	return &PrintServerHandler{queue: queue, printer: printer, logger: logger}
}

func (h *PrintServerHandler) SubmitJob(c *gin.Context) {
	var payload core.PrintPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBindError(c, err)
		return
	}

	position, err := h.queue.Enqueue(payload)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, core.SubmitResponse{
		Success:       true,
		Message:       "Print job queued",
		QueuePosition: position,
	})
}

func (h *PrintServerHandler) PrinterStatus(c *gin.Context) {
	st := h.printer.CheckStatus(c.Request.Context())
	printing := h.queue.IsPrinting()

	status := serverStatusOnline
	switch {
	case !st.Available:
		status = serverStatusOffline
	case printing:
		status = serverStatusPrinting
	}

	c.JSON(http.StatusOK, core.ServerStatus{
		Success:     true,
		Status:      status,
		Message:     st.Message,
		Details:     st.Details,
		QueueLength: h.queue.Len(),
		IsPrinting:  printing,
	})
}

func (h *PrintServerHandler) Queue(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.Snapshot())
}

// RegisterPrintServerRoutes mounts the print server API. submitAuth guards
// job submission.
func RegisterPrintServerRoutes(r *gin.RouterGroup, h *PrintServerHandler, submitAuth gin.HandlerFunc) {
	r.GET("/printer/status", h.PrinterStatus)
	r.POST("/print", submitAuth, h.SubmitJob)
	r.GET("/queue", h.Queue)
}
