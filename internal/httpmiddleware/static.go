package httpmiddleware

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

// publicFS hides dotfiles and dot-directories (.env, .git) from the static
// server.
type publicFS struct {
	static.ServeFileSystem
}

func (p publicFS) Exists(prefix, path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, ".") {
			return false
		}
	}
	return p.ServeFileSystem.Exists(prefix, path)
}

// Static serves GET and HEAD requests whose path names a file under root.
// Anything else falls through to the API routes.
func Static(root string) gin.HandlerFunc {
	serve := static.Serve("/", publicFS{static.LocalFile(root, false)})
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Next()
			return
		}
		serve(c)
	}
}
