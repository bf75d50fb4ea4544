package auth

import (
	"context"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
)

// GinMiddleware rejects requests without a valid bearer token and stores the
// identity on the request context.
func (a *Authenticator) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		who, err := a.ParseAuthorization(c.GetHeader("Authorization"))
		if err != nil {
			e := errors.Convert(err)
			_ = c.Error(err)
			c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"code": e.Code.String(), "message": e.Message})
			return
		}

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), who))
		c.Next()
	}
}

// UnaryServerInterceptor resolves the identity from the "authorization" metadata.
// Methods listed in skip pass through unauthenticated.
func (a *Authenticator) UnaryServerInterceptor(skip ...string) grpc.UnaryServerInterceptor {
	open := make(map[string]struct{}, len(skip))
	for _, m := range skip {
		open[m] = struct{}{}
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := open[info.FullMethod]; ok {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing authorization metadata"))
		}

		who, err := a.ParseAuthorization(values[0])
		if err != nil {
			return nil, err
		}

		return handler(WithIdentity(ctx, who), req)
	}
}
