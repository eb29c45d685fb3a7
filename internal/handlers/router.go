package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/careconnect/careconnect-api/internal/middleware"
	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/utils"
)

type RouterOptions struct {
	CORSOrigins []string
	// FilesDir, when set, is served under /files. Used with disk storage.
	FilesDir string
}

// NewRouter mounts every route on a fresh gin engine.
func NewRouter(h *Handler, jwt *utils.JWTManager, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RequestLogger(h.Log), middleware.Recovery(h.Log))
	corsConfig := cors.Config{
		AllowOrigins:     opts.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(opts.CORSOrigins) == 0 {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	r.Use(cors.New(corsConfig))

	if opts.FilesDir != "" {
		r.Static("/files", opts.FilesDir)
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Route not found"})
	})

	api := r.Group("/api")
	api.GET("/health", h.Health)
	api.GET("/specializations", h.ListSpecializations)

	users := api.Group("/users")
	{
		users.POST("/register", h.RegisterUser)
		users.POST("/login", h.Login)
		users.GET("/me", middleware.AuthMiddleware(jwt), h.GetCurrentUser)
		users.PUT("/me", middleware.AuthMiddleware(jwt), h.UpdateCurrentUser)
	}

	reset := api.Group("/password-reset")
	{
		reset.POST("/request", h.RequestPasswordReset)
		reset.GET("/verify-token/:token", h.VerifyResetToken)
		reset.POST("/reset", h.ResetPassword)
	}

	admin := api.Group("/admin", middleware.AuthMiddleware(jwt), middleware.RequireRole(models.RoleAdmin))
	{
		admin.POST("/register", h.AdminRegisterUser)
		admin.GET("/users", h.ListUsers)
		admin.GET("/stats", h.AdminStats)
		admin.GET("/appointments", h.ListAppointments)
		admin.PATCH("/appointments/:id", h.UpdateAppointment)
		admin.DELETE("/appointments/:id", h.DeleteAppointment)
		admin.POST("/specializations", h.CreateSpecialization)
		admin.DELETE("/specializations/:id", h.DeleteSpecialization)
		admin.GET("/reports", h.ListReports)
		admin.GET("/:userId", h.GetUser)
		admin.DELETE("/:userId", h.DeleteUser)
	}

	doctors := api.Group("/doctors", middleware.AuthMiddleware(jwt), middleware.RequireRole(models.RoleDoctor))
	{
		doctors.GET("/profile", h.GetDoctorProfile)
		doctors.PUT("/profile", h.UpdateDoctorProfile)
		doctors.GET("/dashboard", h.DoctorDashboard)
		doctors.GET("/patients", h.PatientsUnderCare)

		doctors.GET("/appointments", h.ListAppointments)
		doctors.POST("/appointments", h.CreateAppointment)
		doctors.GET("/appointments/:id", h.GetAppointment)
		doctors.PATCH("/appointments/:id", h.UpdateAppointment)
		doctors.DELETE("/appointments/:id", h.DeleteAppointment)
		doctors.PATCH("/appointments/:id/confirm", h.ConfirmAppointment)

		doctors.GET("/prescriptions", h.ListPrescriptions)
		doctors.POST("/prescriptions", h.IssuePrescription)
		doctors.PUT("/prescriptions/:id", h.UpdatePrescription)
		doctors.GET("/records", h.ListRecords)
		doctors.POST("/records", h.AddRecord)
		doctors.PUT("/records/:id", h.UpdateRecord)

		mountReports(doctors, h)
		mountNotifications(doctors, h)
	}

	patients := api.Group("/patients", middleware.AuthMiddleware(jwt), middleware.RequireRole(models.RolePatient))
	{
		patients.GET("/profile", h.GetPatientProfile)
		patients.PUT("/profile", h.UpdatePatientProfile)
		patients.GET("/dashboard", h.PatientDashboard)
		patients.GET("/doctors", h.ListDoctors)
		patients.GET("/consulted-doctors", h.ConsultedDoctors)

		patients.GET("/appointments", h.ListAppointments)
		patients.POST("/appointments", h.CreateAppointment)
		patients.GET("/appointments/:id", h.GetAppointment)
		patients.PATCH("/appointments/:id/cancel", h.CancelAppointment)

		patients.GET("/prescriptions", h.ListPrescriptions)
		patients.GET("/records", h.ListRecords)

		mountReports(patients, h)
		mountNotifications(patients, h)
	}

	return r
}

func mountReports(g *gin.RouterGroup, h *Handler) {
	g.GET("/reports", h.ListReports)
	g.POST("/reports", h.RequestReport)
	g.GET("/reports/:id", h.GetReport)
}

func mountNotifications(g *gin.RouterGroup, h *Handler) {
	g.GET("/notifications", h.GetNotifications)
	g.PATCH("/notifications/read-all", h.MarkAllNotificationsRead)
	g.PATCH("/notifications/:id/read", h.MarkNotificationRead)
}
