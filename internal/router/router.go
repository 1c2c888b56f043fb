package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clinsim/simlab-api/internal/handler"
	"github.com/clinsim/simlab-api/internal/middleware"
	"github.com/clinsim/simlab-api/internal/models"
	"github.com/clinsim/simlab-api/internal/service"
	"github.com/clinsim/simlab-api/pkg/config"
	"github.com/clinsim/simlab-api/pkg/logger"
	corsmiddleware "github.com/clinsim/simlab-api/pkg/middleware/cors"
	reqidmiddleware "github.com/clinsim/simlab-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Auth          *handler.AuthHandler
	Users         *handler.UserHandler
	Rooms         *handler.RoomHandler
	Courses       *handler.CourseHandler
	Classes       *handler.ClassHandler
	Practices     *handler.PracticeHandler
	Simulations   *handler.SimulationHandler
	Rubrics       *handler.RubricHandler
	Grades        *handler.GradeHandler
	Calendar      *handler.CalendarHandler
	Videos        *handler.VideoHandler
	Configuration *handler.ConfigurationHandler
	Metrics       *handler.MetricsHandler
}

// New builds the gin engine with the full middleware chain and route table.
func New(cfg *config.Config, logr *zap.Logger, auth *service.AuthService, metrics *service.MetricsService, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(cfg.APIPrefix)

	// Public surface: credential exchange and signed playback streaming.
	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/refresh", h.Auth.Refresh)
	api.POST("/auth/forgot-password", h.Auth.ForgotPassword)
	api.POST("/auth/reset-password", h.Auth.ResetPassword)
	api.GET("/videos/stream", h.Videos.Stream)

	authed := api.Group("")
	authed.Use(middleware.JWT(auth))

	authed.POST("/auth/logout", h.Auth.Logout)
	authed.POST("/auth/change-password", h.Auth.ChangePassword)
	authed.GET("/auth/me", h.Auth.Me)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator)
	teaching := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator, models.RoleProfessor)

	users := authed.Group("/users")
	{
		users.GET("", staff, h.Users.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleCoordinator), "SELF"), h.Users.Get)
		users.POST("", middleware.RequireRoles(models.RoleAdmin), h.Users.Create)
		users.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), h.Users.Update)
		users.PUT("/:id/roles", middleware.RequireRoles(models.RoleAdmin), h.Users.UpdateRoles)
		users.PUT("/:id/preferred-role", middleware.RBAC(string(models.RoleAdmin), "SELF"), h.Users.UpdatePreferredRole)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), h.Users.Delete)
	}

	rooms := authed.Group("/rooms")
	{
		rooms.GET("", h.Rooms.List)
		rooms.GET("/types", h.Rooms.ListTypes)
		rooms.GET("/available", h.Rooms.Available)
		rooms.GET("/:id", h.Rooms.Get)
		rooms.POST("", staff, h.Rooms.Create)
		rooms.PUT("/:id", staff, h.Rooms.Update)
		rooms.DELETE("/:id", staff, h.Rooms.Delete)
	}

	courses := authed.Group("/courses")
	{
		courses.GET("", h.Courses.List)
		courses.GET("/:id", h.Courses.Get)
		courses.POST("", staff, h.Courses.Create)
		courses.PUT("/:id", staff, h.Courses.Update)
		courses.DELETE("/:id", staff, h.Courses.Delete)
	}

	classes := authed.Group("/classes")
	{
		classes.GET("", h.Classes.List)
		classes.GET("/:id", h.Classes.Get)
		classes.POST("", staff, h.Classes.Create)
		classes.PUT("/:id", staff, h.Classes.Update)
		classes.DELETE("/:id", staff, h.Classes.Delete)
		classes.GET("/:id/professors", h.Classes.Professors)
		classes.GET("/:id/students", h.Classes.Students)
		classes.PUT("/:id/professors", staff, h.Classes.ReplaceProfessors)
		classes.PUT("/:id/students", staff, h.Classes.ReplaceStudents)
		classes.PUT("/:id/percentages", teaching, h.Grades.UpdatePercentages)
		classes.GET("/:id/grades", teaching, h.Grades.FinalGrades)
		classes.GET("/:id/grades/export", teaching, h.Grades.Export)
	}

	practices := authed.Group("/practices")
	{
		practices.GET("", h.Practices.List)
		practices.GET("/:id", h.Practices.Get)
		practices.POST("", teaching, h.Practices.Create)
		practices.PUT("/:id", teaching, h.Practices.Update)
		practices.DELETE("/:id", teaching, h.Practices.Delete)
		practices.PUT("/:id/template/:templateId", teaching, h.Practices.AttachTemplate)
	}

	simulations := authed.Group("/simulations")
	{
		simulations.GET("", h.Simulations.List)
		simulations.GET("/schedule", h.Simulations.WeeklySchedule)
		simulations.GET("/:id", h.Simulations.Get)
		simulations.POST("", teaching, h.Simulations.Add)
		simulations.PUT("/:id", teaching, h.Simulations.Update)
		simulations.DELETE("/:id", teaching, h.Simulations.Delete)
		simulations.POST("/:id/grade", middleware.RequireRoles(models.RoleAdmin, models.RoleProfessor), h.Simulations.PublishGrade)
		simulations.GET("/:id/rubric", h.Rubrics.GetSimulationRubric)
		simulations.PUT("/:id/rubric", middleware.RequireRoles(models.RoleAdmin, models.RoleProfessor), h.Rubrics.ScoreSimulationRubric)
	}

	templates := authed.Group("/rubric-templates")
	{
		templates.GET("", h.Rubrics.ListTemplates)
		templates.GET("/:id", h.Rubrics.GetTemplate)
		templates.POST("", teaching, h.Rubrics.CreateTemplate)
		templates.PUT("/:id/archive", teaching, h.Rubrics.ArchiveTemplate)
		templates.DELETE("/:id", teaching, h.Rubrics.DeleteTemplate)
	}

	authed.GET("/calendar", h.Calendar.Events)
	authed.GET("/streaming/video/:title", h.Videos.StreamByTitle)

	videos := authed.Group("/videos")
	{
		videos.GET("", h.Videos.List)
		videos.GET("/:id", h.Videos.Get)
		videos.POST("", teaching, h.Videos.Register)
		videos.PUT("/:id/simulation/:simulationId", teaching, h.Videos.AttachSimulation)
		videos.POST("/:id/playback", h.Videos.PlaybackGrant)
	}

	configuration := authed.Group("/configuration", middleware.RequireRoles(models.RoleAdmin))
	{
		configuration.GET("/mail", h.Configuration.GetMailSettings)
		configuration.PUT("/mail", h.Configuration.UpdateMailSettings)
	}

	return r
}
