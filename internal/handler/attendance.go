package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolattend/internal/attendance"
)

type markEntry struct {
	StudentID string `json:"studentId"`
	Status    string `json:"status"`
}

type markRequest struct {
	ClassID string      `json:"classId" binding:"required"`
	Date    string      `json:"date" binding:"required"`
	Records []markEntry `json:"records"`
}

type attendanceHandler struct{ svc *attendance.Service }

func (h *attendanceHandler) list(c *gin.Context) {
	records, err := h.svc.ListRecords(c.Request.Context(), attendance.ListFilter{
		ClassID:   c.Query("classId"),
		StudentID: c.Query("studentId"),
		Date:      c.Query("date"),
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *attendanceHandler) mark(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	entries := make([]attendance.Entry, 0, len(req.Records))
	for _, r := range req.Records {
		entries = append(entries, attendance.Entry{StudentID: r.StudentID, Status: r.Status})
	}
	res, err := h.svc.MarkAttendance(c.Request.Context(), attendance.MarkRequest{
		ClassID: req.ClassID,
		Date:    req.Date,
		Entries: entries,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *attendanceHandler) remove(c *gin.Context) {
	if err := h.svc.DeleteRecord(c.Request.Context(), c.Param("id")); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *attendanceHandler) summary(c *gin.Context) {
	sum, err := h.svc.Summarize(c.Request.Context(), c.Param("classId"), c.Param("date"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *attendanceHandler) report(c *gin.Context) {
	rep, err := h.svc.SummarizeRange(c.Request.Context(), c.Query("classId"), c.Query("from"), c.Query("to"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}
