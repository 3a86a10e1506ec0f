package media

import "github.com/gin-gonic/gin"

// RegisterRoutes registers media and bin routes under the protected group.
// Every route requires an identity set by middleware.Identity.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	media := r.Group("/media")
	{
		media.POST("", h.Upload)
		media.GET("", h.ListActive)
		media.GET("/:id", h.GetOriginal)
		media.GET("/:id/thumbnail", h.GetThumbnail)
		media.DELETE("/:id", h.SoftDelete)
	}

	bin := r.Group("/bin")
	{
		bin.GET("", h.ListBinned)
		bin.GET("/:id", h.GetBinned)
		bin.POST("/:id/restore", h.Restore)
		bin.DELETE("/:id", h.Purge)
	}
}
