// Package scaffold provides an extensible HTTP server framework built around
// lifecycle hooks, a route registry with conflict detection, pluggable per-route
// security, and a cron-style task scheduler.
//
// The core building blocks live in this package: HookManager sequences named
// lifecycle phases and request-scoped security checks, RouteRegistry stores
// normalized route records and derives conflicts on demand, and ServiceRegistry
// holds named service handles and coordinates their teardown. Feature packages
// build on these: security resolves per-route authentication gates, controller
// mounts registered controllers onto a chi router, and scheduler runs periodic
// jobs with reentrancy protection.
//
// Applications are wired through the app package:
//
//	cfg := scaffold.NewConfig()
//	logger := scaffold.NewZerologLogger(os.Stderr, zerolog.InfoLevel)
//	a := app.New(cfg, logger)
//	a.Controllers().Register(&UsersController{})
//	if err := a.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package scaffold
