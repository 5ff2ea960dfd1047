package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/agri-support-service/internal/auth"
	"github.com/psds-microservice/agri-support-service/internal/classifier"
	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/service"
)

type MLHandler struct {
	workflow         *service.WorkflowService
	classifierHealth Checker
	maxUploadBytes   int64
}

func NewMLHandler(workflow *service.WorkflowService, classifierHealth Checker, maxUploadBytes int64) *MLHandler {
	return &MLHandler{workflow: workflow, classifierHealth: classifierHealth, maxUploadBytes: maxUploadBytes}
}

// Health probes the classifier. It is kept off /ready so an ML outage does
// not take the request API out of rotation.
func (h *MLHandler) Health(c *gin.Context) {
	if h.classifierHealth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not configured"})
		return
	}
	if err := h.classifierHealth(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"status": "unavailable", "error": errs.Message(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Predict always answers 200; classifier failures travel in the error field.
func (h *MLHandler) Predict(c *gin.Context) {
	if _, err := auth.Current(c); err != nil {
		writeError(c, err)
		return
	}
	image, err := formUpload(c, "image", h.maxUploadBytes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.workflow.Predict(c.Request.Context(), c.PostForm("crop"), image))
}

type predictAndCreateResponse struct {
	Prediction   *classifier.Prediction `json:"prediction"`
	Advice       *string                `json:"advice"`
	RequestTopic *string                `json:"request_topic"`
	Request      *requestView           `json:"request"`
}

func (h *MLHandler) PredictAndCreate(c *gin.Context) {
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
	res, err := h.workflow.PredictAndCreate(c.Request.Context(), actor, service.PredictInput{
		Crop:     c.PostForm("crop"),
		State:    c.PostForm("state"),
		District: c.PostForm("district"),
	}, image)
	if err != nil {
		writeError(c, err)
		return
	}
	out := predictAndCreateResponse{Prediction: res.Prediction, Advice: res.Advice, RequestTopic: res.Topic}
	status := http.StatusOK
	if res.Request != nil {
		v := newRequestView(res.Request, actor)
		out.Request = &v
		status = http.StatusCreated
	}
	c.JSON(status, out)
}

func (h *MLHandler) Forward(c *gin.Context) {
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
	r, err := h.workflow.ForwardToOfficer(c.Request.Context(), actor, service.ForwardToOfficerInput{
		Crop:        c.PostForm("crop"),
		DiseaseName: c.PostForm("diseaseName"),
		Advice:      c.PostForm("advice"),
		State:       c.PostForm("state"),
		District:    c.PostForm("district"),
	}, image)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRequestView(r, actor))
}

type adviceRequest struct {
	CropName    string `json:"crop_name"`
	DiseaseName string `json:"disease_name"`
}

// Advice answers {"answer": null} when the advisory service is unavailable.
func (h *MLHandler) Advice(c *gin.Context) {
	if _, err := auth.Current(c); err != nil {
		writeError(c, err)
		return
	}
	var req adviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if req.CropName == "" || req.DiseaseName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "crop_name and disease_name are required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": h.workflow.Advice(c.Request.Context(), req.CropName, req.DiseaseName)})
}
