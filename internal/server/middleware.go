package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/fedbill/internal/observability/context"
)

const (
	contextSubjectKey = "admin_subject"
	actorAdminToken   = "admin_token"
)

// adminRequired authenticates the bearer token and checks that its subject
// may perform action on object.
func (s *Server) adminRequired(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, err := s.verifier.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), actorAdminToken, subject)
		ctx = obscontext.WithClient(ctx, c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextSubjectKey, subject)

		if err := s.authzSvc.Authorize(ctx, subject, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		res := s.limiter.Allow(c.Request.Context(), c.ClientIP())
		if !res.Allowed {
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
