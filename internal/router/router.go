package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/user/lms/internal/handler"
	"github.com/user/lms/internal/middleware"
	"github.com/user/lms/internal/model"
)

// New 创建 gin 引擎并注册中间件与路由；counter 为 nil 时不限流
func New(h *handler.Handler, counter middleware.Counter) *gin.Engine {
	cfg := h.Config
	production := cfg.IsProduction()

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(h.Log),
		middleware.Recovery(h.Log, production),
		middleware.SecurityHeaders(production),
		middleware.CORS(cfg.ClientURL),
		gzip.Gzip(gzip.DefaultCompression),
		middleware.ErrorHandler(h.Log, production),
	)
	r.MaxMultipartMemory = 32 << 20

	RegisterRoutes(r, h, counter)
	return r
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, h *handler.Handler, counter middleware.Counter) {
	cfg := h.Config
	requireAuth := middleware.RequireAuth(h.AuthConfig())
	instructorOnly := middleware.RestrictTo(model.RoleInstructor, model.RoleAdmin)

	r.GET("/", h.Hello)
	r.NoRoute(h.NotFound)

	api := r.Group("/api")
	api.Use(middleware.RateLimit(counter, cfg.RateLimit.Limit, cfg.RateLimit.Window, h.Log))

	api.GET("/health", h.Health)

	// ==================== 用户 ====================
	users := api.Group("/users")
	{
		users.POST("/signup", h.SignUp)
		users.POST("/signin", h.SignIn)
		users.POST("/signout", h.SignOut)
		users.POST("/forgot-password", h.ForgotPassword)
		users.POST("/reset-password/:token", h.ResetPassword)

		users.GET("/profile", requireAuth, h.Profile)
		users.PATCH("/profile", requireAuth, h.UpdateProfile)
		users.PATCH("/password", requireAuth, h.ChangePassword)
	}

	// ==================== 课程 ====================
	courses := api.Group("/courses")
	{
		courses.GET("/search", h.SearchCourses)
		courses.GET("/published", h.PublishedCourses)

		courses.POST("", requireAuth, middleware.RestrictTo(model.RoleInstructor), h.CreateCourse)
		courses.GET("", requireAuth, instructorOnly, h.MyCourses)

		course := courses.Group("/c/:courseId", requireAuth)
		{
			course.GET("", h.GetCourse)
			course.PATCH("", instructorOnly, h.UpdateCourse)
			course.PATCH("/publish", instructorOnly, h.PublishCourse)
			course.POST("/lectures", instructorOnly, h.AddLecture)
			course.GET("/lectures", h.CourseLectures)
			course.POST("/ratings", h.RateCourse)
		}

		courses.POST("/:courseId/lectures", requireAuth, instructorOnly, h.AddLecture)
	}

	// ==================== 学习进度 ====================
	progress := api.Group("/progress", requireAuth)
	{
		progress.GET("", h.MyProgress)
		progress.GET("/:courseId", h.GetProgress)
		progress.POST("/:courseId/start", h.StartCourse)
		progress.POST("/:courseId/lectures/:lectureId/view", h.RecordLectureView)
		progress.PUT("/:courseId/lectures/:lectureId", h.UpdateLectureProgress)
		progress.PUT("/:courseId/complete", h.CompleteCourse)
		progress.PUT("/:courseId/reset", h.ResetProgress)
	}

	// ==================== 支付 ====================
	payments := api.Group("/payments", requireAuth)
	{
		payments.POST("/create-order", h.CreateOrder)
		payments.POST("/verify-payment", h.VerifyPayment)
		payments.GET("/purchases", h.Purchases)
		payments.POST("/purchases/:purchaseId/refund", h.RefundPurchase)
	}

	// ==================== 媒体 ====================
	api.POST("/media/upload-video", requireAuth, instructorOnly, h.UploadVideo)
}
