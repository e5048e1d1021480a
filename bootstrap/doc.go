// Package bootstrap composes a resilience runtime from a config.Config.
//
// Build wires every component exactly once: logger, telemetry, cache
// providers and registry, the caching decorator, the decoration strategy,
// the Resilience facade, token extraction and health checks. There is no
// discovery step; a misconfigured runtime fails in Build.
//
//	cfg, err := config.NewLoader(config.WithFiles("app.yaml")).Load(ctx)
//	if err != nil {
//	    return err
//	}
//	rt, err := bootstrap.Build(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer rt.Shutdown(context.Background())
//
//	rc, _ := rt.Configuration("prices")
//	price, err := resilience.Execute(ctx, rt.Resilience, rc, fetchPrice, nil)
package bootstrap
