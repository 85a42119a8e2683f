package observability

// DefaultSentryDSN is used when no DSN is configured and the environment
// doesn't override it either. It's intentionally empty: unlike the
// wandb-core client this package started from (which shipped a baked-in
// project DSN), this pipeline has no managed Sentry project to report to
// by default, so error reporting stays off until an operator configures
// one.
const DefaultSentryDSN = ""
