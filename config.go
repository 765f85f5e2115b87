package alarik

import "time"

// config collects every Gateway knob an Option can set. Zero value plus
// defaultConfig() mirrors gofakes3's own Option/gofakes3Options split.
type config struct {
	logger              Logger
	timeSource           func() time.Time
	timeSkewLimit        time.Duration
	unsortedQueryFallback bool
	metadataSizeLimit    int
	accountStore         AccountStore
}

func defaultConfig() config {
	return config{
		logger:                DiscardLog(),
		timeSource:            time.Now,
		timeSkewLimit:         15 * time.Minute,
		unsortedQueryFallback: true,
		metadataSizeLimit:     2 * 1024, // matches S3's 2KiB user-metadata ceiling
		accountStore:          NewInMemoryAccountStore(),
	}
}

// Option configures a Gateway at construction time.
type Option func(*config)

// WithLogger overrides the Gateway's Logger (default DiscardLog()).
func WithLogger(l Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTimeSource overrides the clock the Gateway stamps responses and
// object metadata with. Tests use this to pin time without sleeping.
func WithTimeSource(f func() time.Time) Option {
	return func(c *config) { c.timeSource = f }
}

// WithTimeSkewLimit records a clock-skew limit in the Gateway's config. The
// stored value is not consulted by any request path: skew for signed
// requests is enforced by the signature package's own DefaultSkew.
func WithTimeSkewLimit(d time.Duration) Option {
	return func(c *config) { c.timeSkewLimit = d }
}

// WithUnsortedQueryFallback controls whether signature verification retries
// with the query string canonicalized in wire order when the sorted
// canonical form doesn't match, for clients (older aws-cli releases, some
// SDKs) that sign it unsorted. Defaults to enabled; an operator that wants
// to reject those requests outright can disable it. Applying this option
// affects every Gateway constructed in the process, since the signature
// package verifies requests ahead of any per-Gateway dispatch.
func WithUnsortedQueryFallback(enabled bool) Option {
	return func(c *config) { c.unsortedQueryFallback = enabled }
}

// WithAccountStore overrides the AccountStore backing bucket ownership.
func WithAccountStore(store AccountStore) Option {
	return func(c *config) { c.accountStore = store }
}
