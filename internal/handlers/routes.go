package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/lakestack/hometrace/internal/auth"
	"github.com/lakestack/hometrace/internal/middleware"
	"github.com/lakestack/hometrace/internal/models"
)

// Users is the account lookup the routes need
type Users interface {
	UserFinder
	UserLookup
	UserCreator
	UserLister
	UserEditor
}

// Deps wires the API routes
type Deps struct {
	Appointments AppointmentService
	Users        Users
	Properties   PropertyCreator
	JWT          *auth.JWTService
	Sessions     *CalendarSessions
	PublicURL    string
}

// Register mounts the public, authenticated and admin API routes on r
func Register(r gin.IRouter, d Deps) {
	api := r.Group("/api")

	api.POST("/auth/login", Login(d.Users, d.JWT))

	api.POST("/appointments", CreateAppointment(d.Appointments))
	api.GET("/appointments", ListAppointments(d.Appointments))
	api.GET("/appointments/:id/respond", RespondToAppointment(d.Appointments, d.PublicURL))

	authed := api.Group("")
	authed.Use(middleware.RequireAuth(d.JWT))
	authed.GET("/auth/me", Me(d.Users))

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRole(models.RoleAdmin, models.RoleAgent))
	{
		admin.GET("/appointments", AdminListAppointments(d.Appointments))
		admin.GET("/appointments/:id", AdminGetAppointment(d.Appointments))
		admin.PATCH("/appointments/:id", AdminUpdateAppointment(d.Appointments))
		admin.DELETE("/appointments/:id", AdminDeleteAppointment(d.Appointments))
		admin.POST("/appointments/cleanup", middleware.RequireRole(models.RoleAdmin), CleanupAppointments(d.Appointments))
		admin.GET("/dashboard/stats", DashboardStats(d.Appointments))

		admin.GET("/users", ListUsers(d.Users))
		admin.POST("/users", middleware.RequireRole(models.RoleAdmin), CreateUser(d.Users))
		admin.GET("/users/:id", middleware.RequireRole(models.RoleAdmin), GetUser(d.Users))
		admin.PATCH("/users/:id", middleware.RequireRole(models.RoleAdmin), UpdateUser(d.Users))
		admin.DELETE("/users/:id", middleware.RequireRole(models.RoleAdmin), DeleteUser(d.Users))

		admin.POST("/properties", CreateProperty(d.Properties, d.Users))

		cal := admin.Group("/calendar")
		cal.GET("", CalendarView(d.Sessions))
		cal.DELETE("", DiscardCalendar(d.Sessions))
		cal.GET("/ics", CalendarICS(d.Sessions))
		cal.POST("/load", CalendarLoad(d.Sessions))
		cal.POST("/week", CalendarNavigate(d.Sessions))
		cal.POST("/drag/start", DragStart(d.Sessions))
		cal.POST("/drag/hover", DragHover(d.Sessions))
		cal.POST("/drag/leave", DragLeave(d.Sessions))
		cal.POST("/drag/drop", DragDrop(d.Sessions))
		cal.POST("/drag/staging", DragToStaging(d.Sessions))
		cal.POST("/drag/cancel", DragCancel(d.Sessions))
		cal.POST("/events/:eventId/status", ChangeEventStatus(d.Sessions))
		cal.DELETE("/staging/:eventId", RemoveFromStaging(d.Sessions))
		cal.POST("/save", SaveCalendar(d.Sessions))
	}
}
