package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/psds-microservice/agri-support-service/api"
	"github.com/psds-microservice/agri-support-service/internal/handler"
	"github.com/psds-microservice/helpy/paths"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Handlers struct {
	Requests *handler.RequestHandler
	Chat     *handler.ChatHandler
	ML       *handler.MLHandler
	Files    *handler.FileHandler
	Ready    map[string]handler.Checker
	// Auth resolves the caller for every /api/v1 route.
	Auth gin.HandlerFunc
}

func New(h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(paths.PathHealth, handler.Health)
	r.GET(paths.PathReady, handler.Ready(h.Ready))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})
	r.GET("/api/files/:name", h.Files.Get)

	v1 := r.Group("/api/v1")
	v1.Use(h.Auth)
	{
		v1.POST("/requests", h.Requests.Create)
		v1.GET("/requests/mine", h.Requests.Mine)
		v1.GET("/requests/mine/archived", h.Requests.MineArchived)
		v1.GET("/requests/officer/queue", h.Requests.Queue)
		v1.GET("/requests/officer/assigned", h.Requests.Assigned)
		v1.GET("/requests/officer/archived", h.Requests.AgentArchived)
		v1.GET("/requests/:id", h.Requests.Get)
		v1.POST("/requests/:id/take", h.Requests.Take)
		v1.POST("/requests/:id/forward", h.Requests.Forward)
		v1.POST("/requests/:id/archive", h.Requests.Archive)
		v1.GET("/requests/:id/messages", h.Chat.List)
		v1.POST("/requests/:id/messages", h.Chat.Send)

		v1.GET("/users/officers", h.Requests.Agents)

		v1.POST("/ml/predict", h.ML.Predict)
		v1.POST("/ml/predict-and-create", h.ML.PredictAndCreate)
		v1.POST("/ml/forward", h.ML.Forward)
		v1.POST("/ml/advice", h.ML.Advice)
		v1.GET("/ml/health", h.ML.Health)
	}

	return r
}
