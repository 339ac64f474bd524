// Package bootstrap provides application initialization and lifecycle management.
// It composes configuration, persistence, token validation, the OAuth registry,
// the real-time transport and the feature modules into one App.
//
// Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	app, err := bootstrap.NewApp(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Shutdown()
//
//	if err := app.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Wait for shutdown signal
//	app.WaitForShutdown()
package bootstrap
