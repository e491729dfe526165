package http

import "github.com/gin-gonic/gin"

// Register mounts every game host endpoint on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.POST("/logs", h.StreamLogs)

	game := api.Group("/game")
	game.POST("/analyze", h.Analyze)
	game.POST("/inject", h.Inject)
	game.POST("/generate", h.GenerateGame)
	game.GET("/models", h.Models)
	game.GET("/:id/play", h.PlayGame)
	game.GET("/:id/export", h.ExportGame)

	store := game.Group("/storage")
	store.POST("/save", h.SaveGame)
	store.GET("/list", h.ListGames)
	store.GET("/stats", h.StorageStats)
	store.GET("/archive", h.ExportArchive)
	store.POST("/archive", h.ImportArchive)
	store.DELETE("/batch", h.DeleteGames)
	store.GET("/:id", h.GetGame)
	store.DELETE("/:id", h.DeleteGame)
}
