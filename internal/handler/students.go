package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolattend/internal/roster"
)

type studentRequest struct {
	Name       string   `json:"name" binding:"required"`
	RollNumber string   `json:"rollNumber" binding:"required"`
	Email      string   `json:"email" binding:"required,email"`
	ClassIDs   []string `json:"classIds"`
}

func (r studentRequest) input() roster.StudentInput {
	return roster.StudentInput{Name: r.Name, RollNumber: r.RollNumber, Email: r.Email, ClassIDs: r.ClassIDs}
}

type studentHandler struct{ svc *roster.Service }

func (h *studentHandler) list(c *gin.Context) {
	classID := c.Query("classId")
	if classID == "" {
		classID = c.Param("classId")
	}
	students, err := h.svc.ListStudents(c.Request.Context(), classID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

func (h *studentHandler) get(c *gin.Context) {
	st, err := h.svc.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *studentHandler) create(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, err := h.svc.CreateStudent(c.Request.Context(), req.input())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.Header("Location", "/api/students/"+st.ID)
	c.JSON(http.StatusCreated, st)
}

func (h *studentHandler) update(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, err := h.svc.UpdateStudent(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *studentHandler) remove(c *gin.Context) {
	if err := h.svc.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
