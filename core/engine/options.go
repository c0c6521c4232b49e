package engine

import "github.com/kilnworks/kiln/core/config"

// Option configures an Engine at construction.
type Option func(*Engine)

// WithExecutorLoader replaces the default connector-backed loader. Used by
// tests to connect without a live database.
func WithExecutorLoader(loader ExecutorLoader) Option {
	return func(e *Engine) {
		e.loader = loader
	}
}

// WithEnvLookup threads a custom environment resolver into datasource URL
// resolution.
func WithEnvLookup(lookup config.LookupEnv) Option {
	return func(e *Engine) {
		e.lookupEnv = lookup
	}
}

// WithBuildInfo sets the version and commit reported by ServerInfo.
func WithBuildInfo(version, commit string) Option {
	return func(e *Engine) {
		e.version = version
		e.commit = commit
	}
}

// WithDatasourceOverride pins a datasource to an explicit URL, bypassing the
// document's declared URL across connect/disconnect cycles.
func WithDatasourceOverride(name, url string) Option {
	return func(e *Engine) {
		if st, ok := e.state.(*builderState); ok {
			st.dm.datasourceOverrides[name] = url
		}
	}
}
