package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dixis/taxengine/internal/config"
	"github.com/dixis/taxengine/internal/tenantcontext"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderTenant = "X-Tenant-ID"
	HeaderActor  = "X-Actor-ID"

	contextTenantIDKey = "tenant_id"
)

// TenantContext resolves the tenant from the X-Tenant-ID header and stores
// it on the request context.
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderTenant))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		tenantID, err := snowflake.ParseString(raw)
		if err != nil || tenantID <= 0 {
			AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant id"))
			return
		}

		c.Set(contextTenantIDKey, tenantID.String())
		c.Request = c.Request.WithContext(tenantcontext.WithTenantID(c.Request.Context(), tenantID))
		c.Next()
	}
}

// TenantRateLimit spends one token of the tenant bucket per request. Redis
// failures are logged and the request is let through.
func (s *Server) TenantRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}
		tenantID, ok := tenantcontext.TenantIDFromContext(c.Request.Context())
		if !ok {
			c.Next()
			return
		}

		res, err := s.limiter.AllowTenant(c.Request.Context(), tenantID)
		if err != nil {
			s.log.Warn("tenant rate limit check failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func actorFromRequest(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(HeaderActor))
}

func corsMiddleware(cfg config.Config) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", HeaderTenant, HeaderActor, "X-Request-Id"}
	corsConfig.ExposeHeaders = []string{"X-Request-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	return cors.New(corsConfig)
}
