package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frictionless-support/support-service/internal/middleware"
	"github.com/frictionless-support/support-service/internal/service"
)

type AdminHandler struct {
	admins *service.AdminService
	stats  *service.StatsService
}

func NewAdminHandler(admins *service.AdminService, stats *service.StatsService) *AdminHandler {
	return &AdminHandler{admins: admins, stats: stats}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	admin, token, err := h.admins.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "admin": admin})
}

type createAdminRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Specialization string `json:"specialization"`
}

func (h *AdminHandler) Create(c *gin.Context) {
	me, _ := middleware.PrincipalFrom(c)
	var req createAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	admin, err := h.admins.Create(c.Request.Context(), me, service.CreateAdminInput{
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
		Specialization: req.Specialization,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, admin)
}

func (h *AdminHandler) Stats(c *gin.Context) {
	me, _ := middleware.PrincipalFrom(c)
	st, err := h.stats.ForAdmin(c.Request.Context(), me.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *AdminHandler) List(c *gin.Context) {
	admins, err := h.admins.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, admins)
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *AdminHandler) ChangePassword(c *gin.Context) {
	me, _ := middleware.PrincipalFrom(c)
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	if err := h.admins.ChangePassword(c.Request.Context(), me, req.OldPassword, req.NewPassword); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated successfully"})
}
