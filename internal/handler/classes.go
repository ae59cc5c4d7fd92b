package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolattend/internal/auth"
	"schoolattend/internal/roster"
)

type classRequest struct {
	Name            string  `json:"name" binding:"required"`
	AssignedTeacher *string `json:"assignedTeacher"`
}

type classHandler struct{ svc *roster.Service }

func (h *classHandler) list(c *gin.Context) {
	classes, err := h.svc.ListClasses(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, classes)
}

func (h *classHandler) get(c *gin.Context) {
	class, err := h.svc.GetClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, class)
}

func (h *classHandler) create(c *gin.Context) {
	var req classRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	class, err := h.svc.CreateClass(c.Request.Context(), roster.ClassInput{
		Name:            req.Name,
		AssignedTeacher: req.AssignedTeacher,
	}, claims.Subject)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.Header("Location", "/api/classes/"+class.ID)
	c.JSON(http.StatusCreated, class)
}

func (h *classHandler) update(c *gin.Context) {
	var req classRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	class, err := h.svc.UpdateClass(c.Request.Context(), c.Param("id"), roster.ClassInput{
		Name:            req.Name,
		AssignedTeacher: req.AssignedTeacher,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, class)
}

func (h *classHandler) remove(c *gin.Context) {
	if err := h.svc.DeleteClass(c.Request.Context(), c.Param("id")); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *classHandler) students(c *gin.Context) {
	students, err := h.svc.ListStudents(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}
