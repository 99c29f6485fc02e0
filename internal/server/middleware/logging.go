// Package middleware holds the HTTP server middlewares.
package middleware

import (
	"context"
	"strings"
	"time"

	pkglog "TripWatch/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Logging returns a middleware that logs every HTTP request with its method,
// path, status and latency. It generates a request id when the client did not
// send one and injects the request context so downstream log calls carry it.
//
// Log output example:
//
//	🟢 POST /v1/recovery/execute - 200 (542ms) | RequestID: mgrn0zfqda
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method    string
				path      string
				ip        string
				userAgent string
				requestID string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Operation()
				path = tr.Operation()

				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					if httpReq.URL.RawQuery != "" {
						path = path + "?" + httpReq.URL.RawQuery
					}

					ip = extractClientIP(httpReq)
					userAgent = httpReq.Header.Get("User-Agent")

					requestID = httpReq.Header.Get("X-Request-ID")
				}
			}
			if requestID == "" {
				requestID = pkglog.GenerateRequestID()
			}

			ctx = pkglog.WithRequestContext(ctx, requestID, "", "")

			reply, err := handler(ctx, req)

			duration := time.Since(startTime).Milliseconds()

			status := 200
			if err != nil {
				status = extractHTTPStatus(err)
			}

			logger.RequestWithContext(ctx, method, path, status, duration,
				"ip", ip,
				"user_agent", userAgent,
			)

			return reply, err
		}
	}
}

// extractClientIP picks the client IP with X-Real-IP taking precedence over
// X-Forwarded-For, falling back to the connection address.
func extractClientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	return req.RemoteAddr
}

// extractHTTPStatus maps an error to the HTTP status code it produces.
func extractHTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	if se := kerrors.FromError(err); se != nil {
		return int(se.Code)
	}
	return 500
}
