package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/agri-support-service/internal/auth"
	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/model"
	"github.com/psds-microservice/agri-support-service/internal/service"
)

type RequestHandler struct {
	requests       *service.RequestService
	views          *service.AssignmentService
	maxUploadBytes int64
}

func NewRequestHandler(requests *service.RequestService, views *service.AssignmentService, maxUploadBytes int64) *RequestHandler {
	return &RequestHandler{requests: requests, views: views, maxUploadBytes: maxUploadBytes}
}

// Create accepts multipart (or urlencoded) fields category, description,
// state, district and an optional image part.
func (h *RequestHandler) Create(c *gin.Context) {
	actor, err := auth.Current(c)
	if err != nil {
		writeError(c, err)
		return
	}
	image, err := formUpload(c, "image", h.maxUploadBytes)
	if err != nil {
		writeError(c, err)
		return
	}
	r, err := h.requests.CreateWithImage(c.Request.Context(), actor, service.CreateInput{
		Category:    c.PostForm("category"),
		Description: c.PostForm("description"),
		State:       c.PostForm("state"),
		District:    c.PostForm("district"),
	}, image)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRequestView(r, actor))
}

func (h *RequestHandler) Get(c *gin.Context) {
	viewer, err := auth.Current(c)
	if err != nil {
		writeError(c, err)
		return
	}
	id, err := pathID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	r, err := h.requests.Get(c.Request.Context(), viewer, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRequestView(r, viewer))
}

type transition func(*service.RequestService, *gin.Context, *model.Identity, uint64) (*model.SupportRequest, error)

func (h *RequestHandler) transition(c *gin.Context, fn transition) {
	actor, err := auth.Current(c)
	if err != nil {
		writeError(c, err)
		return
	}
	id, err := pathID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	r, err := fn(h.requests, c, actor, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRequestView(r, actor))
}

func (h *RequestHandler) Take(c *gin.Context) {
	h.transition(c, func(s *service.RequestService, c *gin.Context, actor *model.Identity, id uint64) (*model.SupportRequest, error) {
		return s.Take(c.Request.Context(), actor, id)
	})
}

func (h *RequestHandler) Archive(c *gin.Context) {
	h.transition(c, func(s *service.RequestService, c *gin.Context, actor *model.Identity, id uint64) (*model.SupportRequest, error) {
		return s.Archive(c.Request.Context(), actor, id)
	})
}

type forwardRequest struct {
	ToOfficerUsername string `json:"to_officer_username"`
}

func (h *RequestHandler) Forward(c *gin.Context) {
	h.transition(c, func(s *service.RequestService, c *gin.Context, actor *model.Identity, id uint64) (*model.SupportRequest, error) {
		var req forwardRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, errs.Validation("invalid body")
		}
		return s.Forward(c.Request.Context(), actor, id, req.ToOfficerUsername)
	})
}

type listView func(*service.AssignmentService, *gin.Context, *model.Identity, model.PageRequest) (model.Page[model.SupportRequest], error)

func (h *RequestHandler) list(c *gin.Context, fn listView) {
	viewer, err := auth.Current(c)
	if err != nil {
		writeError(c, err)
		return
	}
	page, err := fn(h.views, c, viewer, pageParams(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestPage(page, viewer))
}

func (h *RequestHandler) Mine(c *gin.Context) {
	h.list(c, func(s *service.AssignmentService, c *gin.Context, v *model.Identity, p model.PageRequest) (model.Page[model.SupportRequest], error) {
		return s.Mine(c.Request.Context(), v, p)
	})
}

func (h *RequestHandler) MineArchived(c *gin.Context) {
	h.list(c, func(s *service.AssignmentService, c *gin.Context, v *model.Identity, p model.PageRequest) (model.Page[model.SupportRequest], error) {
		return s.MineArchived(c.Request.Context(), v, p)
	})
}

func (h *RequestHandler) Queue(c *gin.Context) {
	h.list(c, func(s *service.AssignmentService, c *gin.Context, v *model.Identity, p model.PageRequest) (model.Page[model.SupportRequest], error) {
		return s.Queue(c.Request.Context(), v, p)
	})
}

func (h *RequestHandler) Assigned(c *gin.Context) {
	h.list(c, func(s *service.AssignmentService, c *gin.Context, v *model.Identity, p model.PageRequest) (model.Page[model.SupportRequest], error) {
		return s.Assigned(c.Request.Context(), v, p)
	})
}

func (h *RequestHandler) AgentArchived(c *gin.Context) {
	h.list(c, func(s *service.AssignmentService, c *gin.Context, v *model.Identity, p model.PageRequest) (model.Page[model.SupportRequest], error) {
		return s.AgentArchived(c.Request.Context(), v, p)
	})
}

// Agents lists forwarding targets.
func (h *RequestHandler) Agents(c *gin.Context) {
	viewer, err := auth.Current(c)
	if err != nil {
		writeError(c, err)
		return
	}
	agents, err := h.views.Agents(c.Request.Context(), viewer)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]agentView, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentView{Username: a.Username, IdentificationNumber: a.IdentificationNumber})
	}
	c.JSON(http.StatusOK, out)
}

