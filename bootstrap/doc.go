// Package bootstrap runs an outbound process: it validates the typed config,
// builds the logger, starts registered components in order, runs the task
// and shuts everything down in reverse within a grace period.
//
//	app, err := bootstrap.NewApp(&cfg)
//	if err != nil {
//	    return err
//	}
//	app.RegisterComponent(storeComponent)
//	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*Config]) error {
//	    client, err := orchestrator.New(ctx, a.Cfg.Outbound, transport)
//	    ...
//	    return a.RegisterComponent(client)
//	})
//	return app.RunTask(ctx, func(ctx context.Context) error { ... })
package bootstrap
