package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig lets the lesson player call the judge API from the browser.
type CORSConfig struct {
	Enabled          bool     `json:",optional" yaml:"enabled"`
	AllowedOrigins   []string `json:",optional" yaml:"allowedOrigins"`
	AllowedMethods   []string `json:",optional" yaml:"allowedMethods"`
	AllowedHeaders   []string `json:",optional" yaml:"allowedHeaders"`
	AllowCredentials bool     `json:",optional" yaml:"allowCredentials"`
	MaxAge           string   `json:",optional" yaml:"maxAge"`
}

// CORSMiddleware applies CORS headers for allowed origins and answers preflights.
func CORSMiddleware(cfg CORSConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	wildcard := false
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.ToLower(strings.TrimSpace(origin))
		if origin == "*" {
			wildcard = true
		}
		if origin != "" {
			allowed[origin] = struct{}{}
		}
	}
	methods := strings.Join(cfg.AllowedMethods, ",")
	if methods == "" {
		methods = "GET,POST,OPTIONS"
	}
	headers := strings.Join(cfg.AllowedHeaders, ",")
	if headers == "" {
		headers = "Content-Type,X-Trace-Id,X-Request-Id,X-User-Id"
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		_, ok := allowed[strings.ToLower(origin)]
		if !ok && !wildcard {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		h := c.Writer.Header()
		if wildcard && !cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Allow-Headers", headers)
		h.Set("Access-Control-Expose-Headers", traceIDHeader+","+requestIDHeader)
		if cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if cfg.MaxAge != "" {
			h.Set("Access-Control-Max-Age", cfg.MaxAge)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
