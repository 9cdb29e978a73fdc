package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vinicius-ssantos/classroom-downloader-api/api/handlers"
	"github.com/vinicius-ssantos/classroom-downloader-api/api/middleware"
	"github.com/vinicius-ssantos/classroom-downloader-api/internal/app"
)

// SetupRouter sets up the HTTP router
func SetupRouter(
	jobSvc *app.JobService,
	catalogSvc *app.CatalogService,
	worker *app.DownloadWorker,
	log *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(worker)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		jobHandler := handlers.NewJobHandler(jobSvc, log)
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/stats", jobHandler.GetStats)
			jobs.GET("/:id", jobHandler.GetJob)
			jobs.POST("/:id/cancel", jobHandler.CancelJob)
			jobs.POST("/:id/retry", jobHandler.RetryJob)
		}

		catalogHandler := handlers.NewCatalogHandler(catalogSvc, log)
		v1.POST("/catalog/import", catalogHandler.ImportCatalog)
		courses := v1.Group("/courses")
		{
			courses.GET("", catalogHandler.ListCourses)
			courses.GET("/:id", catalogHandler.GetCourse)
			courses.GET("/:id/videos", catalogHandler.ListVideos)
		}
		v1.GET("/videos", catalogHandler.ListAllVideos)
	}

	return router
}
