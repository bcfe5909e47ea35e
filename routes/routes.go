package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-server/controllers"
	"chat-server/middlewares"
	"chat-server/services"
)

// Deps is everything the HTTP surface is built from.
type Deps struct {
	Auth          *services.AuthService
	Users         *services.UserService
	Contacts      *services.ContactService
	Groups        *services.GroupService
	Conversations *services.ConversationService
	Messages      *services.MessageService
	Calls         *services.CallService
	Storage       *services.Storage
	Push          *services.PushServer
	Gatherer      prometheus.Gatherer
	CORSOrigins   []string
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = 8 << 20

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	authC := &controllers.AuthController{Auth: d.Auth}
	userC := &controllers.UserController{Users: d.Users}
	contactC := &controllers.ContactController{Contacts: d.Contacts}
	convC := &controllers.ConversationsController{Groups: d.Groups, Conversations: d.Conversations}
	msgC := &controllers.MessageController{Messages: d.Messages}
	callC := &controllers.CallController{Calls: d.Calls}
	uploadC := &controllers.UploadController{Storage: d.Storage}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/register", authC.Register)
	r.POST("/login", authC.Login)
	r.GET("/ws", d.Push.HandleWebSocket)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/files/*filepath", uploadC.Serve)

	protected := r.Group("/")
	protected.Use(middlewares.TokenAuthMiddleware(d.Auth))
	{
		protected.GET("/me", userC.Me)
		protected.GET("/user/:id", userC.Profile)
		protected.GET("/users/search", userC.Search)
		protected.GET("/users/phone/:phone", userC.ByPhone)

		protected.GET("/contacts", contactC.List)
		protected.POST("/contacts", contactC.Upsert)
		protected.PUT("/contacts/:contactId", contactC.Rename)
		protected.DELETE("/contacts/:contactId", contactC.Delete)

		protected.POST("/calls", callC.Initiate)
		protected.GET("/calls/history", callC.History)
		protected.GET("/calls/:callId", callC.Get)
		protected.PUT("/calls/:callId/accept", callC.Accept)
		protected.PUT("/calls/:callId/reject", callC.Reject)
		protected.PUT("/calls/:callId/end", callC.End)

		protected.POST("/groups", convC.Create)
		protected.GET("/groups", convC.List)
		protected.GET("/groups/:id", convC.Get)
		protected.PUT("/groups/:id", convC.Update)
		protected.POST("/groups/:id/leave", convC.Leave)
		protected.POST("/private-chats", convC.CreatePrivate)

		protected.POST("/groups/:id/members", convC.AddMember)
		protected.DELETE("/groups/:id/members/:userId", convC.RemoveMember)
		protected.POST("/groups/:id/admins", convC.PromoteAdmin)
		protected.DELETE("/groups/:id/admins/:userId", convC.DemoteAdmin)

		protected.GET("/groups/:id/messages", msgC.List)
		protected.POST("/groups/:id/messages", msgC.Send)
		protected.POST("/groups/:id/read", msgC.MarkRead)
		protected.POST("/groups/:id/read-all", msgC.MarkAllRead)

		protected.POST("/uploadFile", uploadC.Upload)
	}

	return r
}
