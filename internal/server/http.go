package server

import (
	stdhttp "net/http"
	"strconv"

	"TripWatch/internal/conf"
	"TripWatch/internal/server/middleware"
	"TripWatch/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pkglog "TripWatch/pkg/log"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, svc *service.RecoveryService, logger log.Logger) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logHelper),
		),
		http.Filter(corsFilter),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout != nil {
		opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)

	srv.Handle("/metrics", promhttp.Handler())
	registerRoutes(srv, svc)

	return srv
}

// registerRoutes wires the JSON API onto the server.
func registerRoutes(srv *http.Server, svc *service.RecoveryService) {
	r := srv.Route("/v1")

	r.POST("/recovery/execute", func(ctx http.Context) error {
		var req service.ExecuteRequest
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		result := svc.ExecuteRecovery(ctx, &req)
		return ctx.Result(200, result)
	})

	r.GET("/recovery/actions", func(ctx http.Context) error {
		return ctx.Result(200, svc.ListActions(ctx))
	})

	r.GET("/recovery/queue", func(ctx http.Context) error {
		reply, err := svc.ListQueuedActions(ctx)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.POST("/recovery/queue/{id}/trigger", func(ctx http.Context) error {
		id, err := strconv.ParseInt(ctx.Vars().Get("id"), 10, 64)
		if err != nil {
			return err
		}
		result, err := svc.TriggerQueuedAction(ctx, id)
		if err != nil {
			return err
		}
		return ctx.Result(200, result)
	})

	r.GET("/recovery/log", func(ctx http.Context) error {
		limit, _ := strconv.Atoi(ctx.Query().Get("limit"))
		reply, err := svc.RecentRecoveryLog(ctx, limit)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.GET("/providers/health", func(ctx http.Context) error {
		reply, err := svc.ListProviderHealth(ctx)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.POST("/providers/{provider}/probe", func(ctx http.Context) error {
		h, err := svc.ProbeProvider(ctx, ctx.Vars().Get("provider"))
		if err != nil {
			return err
		}
		return ctx.Result(200, h)
	})

	r.GET("/providers/quotas", func(ctx http.Context) error {
		reply, err := svc.ListProviderQuotas(ctx)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.POST("/providers/usage", func(ctx http.Context) error {
		var req service.UsageRequest
		if err := ctx.Bind(&req); err != nil {
			return err
		}
		reply, err := svc.RecordUsage(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.POST("/providers/{provider}/breaker/reset", func(ctx http.Context) error {
		reply, err := svc.ResetBreaker(ctx, ctx.Vars().Get("provider"))
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.POST("/monitor/start", func(ctx http.Context) error {
		reply, err := svc.StartMonitor(ctx)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.POST("/monitor/stop", func(ctx http.Context) error {
		reply, err := svc.StopMonitor(ctx)
		if err != nil {
			return err
		}
		return ctx.Result(200, reply)
	})

	r.GET("/monitor/status", func(ctx http.Context) error {
		return ctx.Result(200, svc.MonitorStatus(ctx))
	})
}

// corsFilter allows the admin dashboard to call the API from another origin.
func corsFilter(next stdhttp.Handler) stdhttp.Handler {
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if req.Method == stdhttp.MethodOptions {
			w.WriteHeader(stdhttp.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}
