package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/frictionless-support/support-service/internal/errs"
	"github.com/frictionless-support/support-service/internal/middleware"
	"github.com/frictionless-support/support-service/internal/service"
)

type TicketHandler struct {
	svc service.TicketServicer
}

func NewTicketHandler(svc service.TicketServicer) *TicketHandler {
	return &TicketHandler{svc: svc}
}

type createTicketRequest struct {
	Category       string `json:"category"`
	Description    string `json:"description"`
	Email          string `json:"email"`
	WhatsappNumber string `json:"whatsapp_number"`
}

func (h *TicketHandler) Create(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	t, err := h.svc.Create(c.Request.Context(), service.CreateTicketInput{
		Category:       req.Category,
		Description:    req.Description,
		Email:          req.Email,
		WhatsappNumber: req.WhatsappNumber,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *TicketHandler) Get(c *gin.Context) {
	t, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func queryInt(c *gin.Context, key string) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

// List serves the dashboard. assignedToMe and pendingForMe resolve "me" from the token.
func (h *TicketHandler) List(c *gin.Context) {
	me, _ := middleware.PrincipalFrom(c)
	page, ok := queryInt(c, "page")
	if !ok {
		badRequest(c, "page must be a number")
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		badRequest(c, "limit must be a number")
		return
	}
	f := service.ListFilter{
		Page:   page,
		Limit:  limit,
		Status: c.Query("status"),
		Search: c.Query("search"),
		SortBy: c.Query("sortBy"),
	}
	if c.Query("assignedToMe") == "true" {
		f.AssignedTo = me.ID
	}
	if c.Query("pendingForMe") == "true" {
		f.PendingFor = me.ID
	}
	res, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// History lists the caller's own tickets. An explicit email must match the session.
func (h *TicketHandler) History(c *gin.Context) {
	me, _ := middleware.PrincipalFrom(c)
	email := me.Email
	if q := c.Query("email"); q != "" {
		normalized, err := service.NormalizeEmail(q)
		if err != nil {
			writeError(c, err)
			return
		}
		if normalized != me.Email {
			writeError(c, errs.Permission("you can only view your own tickets"))
			return
		}
	}
	tickets, err := h.svc.History(c.Request.Context(), email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tickets)
}

func (h *TicketHandler) Lock(c *gin.Context) {
	me, _ := middleware.PrincipalFrom(c)
	t, err := h.svc.Lock(c.Request.Context(), c.Param("id"), me)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type resolveRequest struct {
	AdminRemark string `json:"admin_remark"`
}

func (h *TicketHandler) Resolve(c *gin.Context) {
	me, _ := middleware.PrincipalFrom(c)
	var req resolveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid body")
			return
		}
	}
	t, err := h.svc.Resolve(c.Request.Context(), c.Param("id"), me, req.AdminRemark)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type initiateTransferRequest struct {
	TargetAdminID uint64 `json:"target_admin_id"`
}

func (h *TicketHandler) InitiateTransfer(c *gin.Context) {
	me, _ := middleware.PrincipalFrom(c)
	var req initiateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	t, err := h.svc.InitiateTransfer(c.Request.Context(), c.Param("id"), me, req.TargetAdminID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) AcceptTransfer(c *gin.Context) {
	me, _ := middleware.PrincipalFrom(c)
	t, err := h.svc.AcceptTransfer(c.Request.Context(), c.Param("id"), me)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) RejectTransfer(c *gin.Context) {
	me, _ := middleware.PrincipalFrom(c)
	t, err := h.svc.RejectTransfer(c.Request.Context(), c.Param("id"), me)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type feedbackRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

func (h *TicketHandler) Feedback(c *gin.Context) {
	me, _ := middleware.PrincipalFrom(c)
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	t, err := h.svc.SubmitFeedback(c.Request.Context(), c.Param("id"), me, req.Rating, req.Feedback)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
