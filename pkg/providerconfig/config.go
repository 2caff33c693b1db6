// Package providerconfig resolves a tagged-union construction-time
// Config into a concrete provider.Provider, recursively resolving nested
// provider configs for the weighted variant.
// It lives apart from pkg/provider (which stays a pure interface) because
// resolving a WeightedConfig requires importing pkg/weighted, and
// pkg/weighted itself depends on pkg/provider.Provider.
package providerconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lucasonchain/psyche/pkg/dummy"
	"github.com/lucasonchain/psyche/pkg/httpds"
	"github.com/lucasonchain/psyche/pkg/local"
	"github.com/lucasonchain/psyche/pkg/logging"
	"github.com/lucasonchain/psyche/pkg/metrics"
	"github.com/lucasonchain/psyche/pkg/provider"
	"github.com/lucasonchain/psyche/pkg/psycheerr"
	"github.com/lucasonchain/psyche/pkg/tcp"
	"github.com/lucasonchain/psyche/pkg/token"
	"github.com/lucasonchain/psyche/pkg/weighted"
)

// Kind tags which back-end a Config describes.
type Kind string

const (
	KindLocal    Kind = "local"
	KindHTTP     Kind = "http"
	KindTCP      Kind = "tcp"
	KindDummy    Kind = "dummy"
	KindWeighted Kind = "weighted"
)

// dialTimeout bounds how long a TCP provider's construction waits to
// connect and complete Hello before failing.
const dialTimeout = 10 * time.Second

// TCPConfig configures a client connection to a remote TCP back-end.
type TCPConfig struct {
	Address       string `json:"address"`
	RunID         string `json:"run_id"`
	IdentityProof string `json:"identity_proof"`
}

// ShuffleConfig is the JSON form of token.Shuffle: an absent or null seed
// means token.DontShuffle.
type ShuffleConfig struct {
	Seed *uint64 `json:"seed,omitempty"`
}

func (s ShuffleConfig) resolve() token.Shuffle {
	if s.Seed == nil {
		return token.DontShuffle
	}
	return token.Seeded(*s.Seed)
}

// LocalConfig configures the local-filesystem back-end.
type LocalConfig struct {
	Dir       string        `json:"dir"`
	SeqLen    int           `json:"seq_len"`
	TokenSize token.Size    `json:"token_size"`
	Shuffle   ShuffleConfig `json:"shuffle"`
}

// HTTPConfig configures the HTTP/object-store back-end. Exactly one of
// URLs, Template, or Bucket must be populated; Build rejects any other
// combination with ConfigError.
type HTTPConfig struct {
	URLs      []string      `json:"urls,omitempty"`
	Template  *TemplateSpec `json:"template,omitempty"`
	Bucket    *BucketSpec   `json:"bucket,omitempty"`
	SeqLen    int           `json:"seq_len"`
	TokenSize token.Size    `json:"token_size"`
	Shuffle   ShuffleConfig `json:"shuffle"`
}

// TemplateSpec is the file-name template variant of HTTPConfig; the first
// "{}" in Template is replaced by each zero-padded index.
type TemplateSpec struct {
	Template string `json:"template"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Pad      int    `json:"pad,omitempty"`
}

// BucketSpec is the anonymous GCS bucket-listing variant of HTTPConfig.
type BucketSpec struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix,omitempty"`
}

// DummyConfig configures the zero-fill latency-isolation back-end.
type DummyConfig struct {
	SeqLen int    `json:"seq_len"`
	Cap    uint64 `json:"cap"`
}

// WeightedEntryConfig pairs a nested provider config with an optional
// explicit weight.
type WeightedEntryConfig struct {
	Provider Config   `json:"provider"`
	Weight   *float64 `json:"weight,omitempty"`
}

// WeightKind selects how WeightedConfig normalizes its entries' weights.
type WeightKind string

const (
	WeightExplicit WeightKind = "explicit"
	WeightByLength WeightKind = "by_length"
)

// WeightedConfig is the JSON form of a weighted provider's config file. It
// resolves recursively: each entry's Provider may itself be a weighted
// config, mixing local/HTTP/TCP/dummy/weighted sub-providers.
type WeightedConfig struct {
	Kind          WeightKind            `json:"kind"`
	Entries       []WeightedEntryConfig `json:"entries"`
	VirtualLength uint64                `json:"virtual_length"`
	Shuffle       ShuffleConfig         `json:"shuffle"`
}

// Config is a tagged union over every back-end's construction parameters.
// Build dispatches on Kind rather than inspecting which field is non-nil.
type Config struct {
	Kind     Kind
	Local    *LocalConfig
	HTTP     *HTTPConfig
	TCP      *TCPConfig
	Dummy    *DummyConfig
	Weighted *WeightedConfig
}

// configWire is Config's JSON representation: {"kind": "...", <kind-named
// field>: {...}}.
type configWire struct {
	Kind     Kind            `json:"kind"`
	Local    *LocalConfig    `json:"local,omitempty"`
	HTTP     *HTTPConfig     `json:"http,omitempty"`
	TCP      *TCPConfig      `json:"tcp,omitempty"`
	Dummy    *DummyConfig    `json:"dummy,omitempty"`
	Weighted *WeightedConfig `json:"weighted,omitempty"`
}

// UnmarshalJSON implements the tagged-union decode: it decodes the kind tag
// and every variant object present in one pass; Build then consults only
// the variant named by Kind.
func (c *Config) UnmarshalJSON(data []byte) error {
	var w configWire
	if err := json.Unmarshal(data, &w); err != nil {
		return psycheerr.Wrap(psycheerr.ConfigError, "providerconfig: decoding config", err)
	}
	*c = Config{Kind: w.Kind, Local: w.Local, HTTP: w.HTTP, TCP: w.TCP, Dummy: w.Dummy, Weighted: w.Weighted}
	return nil
}

// MarshalJSON implements the tagged-union encode, the inverse of
// UnmarshalJSON.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configWire{Kind: c.Kind, Local: c.Local, HTTP: c.HTTP, TCP: c.TCP, Dummy: c.Dummy, Weighted: c.Weighted})
}

// Build resolves a Config into a concrete provider.Provider, recursively
// resolving nested provider configs for the weighted variant. client is
// used by the HTTP variant's discovery and fetch requests; nil uses
// http.DefaultClient. log and httpMetrics may be nil/zero.
func Build(ctx context.Context, cfg Config, client *http.Client, log logging.Logger, httpMetrics *metrics.HTTP) (provider.Provider, error) {
	if log == nil {
		log = logrus.New()
	}
	switch cfg.Kind {
	case KindLocal:
		if cfg.Local == nil {
			return nil, psycheerr.New(psycheerr.ConfigError, "providerconfig: kind=local requires a local config")
		}
		return local.Open(cfg.Local.Dir, cfg.Local.SeqLen, cfg.Local.TokenSize, cfg.Local.Shuffle.resolve(), log)
	case KindHTTP:
		if cfg.HTTP == nil {
			return nil, psycheerr.New(psycheerr.ConfigError, "providerconfig: kind=http requires an http config")
		}
		return buildHTTP(ctx, cfg.HTTP, client, log, httpMetrics)
	case KindTCP:
		if cfg.TCP == nil {
			return nil, psycheerr.New(psycheerr.ConfigError, "providerconfig: kind=tcp requires a tcp config")
		}
		return buildTCP(ctx, cfg.TCP)
	case KindDummy:
		if cfg.Dummy == nil {
			return nil, psycheerr.New(psycheerr.ConfigError, "providerconfig: kind=dummy requires a dummy config")
		}
		return dummy.New(cfg.Dummy.SeqLen, cfg.Dummy.Cap), nil
	case KindWeighted:
		if cfg.Weighted == nil {
			return nil, psycheerr.New(psycheerr.ConfigError, "providerconfig: kind=weighted requires a weighted config")
		}
		return buildWeighted(ctx, cfg.Weighted, client, log, httpMetrics)
	default:
		return nil, psycheerr.New(psycheerr.ConfigError, fmt.Sprintf("providerconfig: unknown kind %q", cfg.Kind))
	}
}

func buildHTTP(ctx context.Context, c *HTTPConfig, client *http.Client, log logging.Logger, m *metrics.HTTP) (provider.Provider, error) {
	var opts []httpds.Option
	if m != nil {
		opts = append(opts, httpds.WithMetrics(m))
	}
	shuffle := c.Shuffle.resolve()
	populated := 0
	if len(c.URLs) > 0 {
		populated++
	}
	if c.Template != nil {
		populated++
	}
	if c.Bucket != nil {
		populated++
	}
	if populated != 1 {
		return nil, psycheerr.New(psycheerr.ConfigError, "providerconfig: http config needs exactly one of urls, template, bucket")
	}
	switch {
	case len(c.URLs) > 0:
		return httpds.NewFromURLs(ctx, client, c.URLs, c.SeqLen, c.TokenSize, shuffle, log, opts...)
	case c.Template != nil:
		t := c.Template
		return httpds.NewFromTemplate(ctx, client, t.Template, t.Start, t.End, t.Pad, c.SeqLen, c.TokenSize, shuffle, log, opts...)
	case c.Bucket != nil:
		return httpds.NewFromBucket(ctx, c.Bucket.Bucket, c.Bucket.Prefix, c.SeqLen, c.TokenSize, shuffle, log, opts...)
	default:
		return nil, psycheerr.New(psycheerr.ConfigError, "providerconfig: http config needs one of urls, template, bucket")
	}
}

// buildTCP dials c.Address and completes the Hello handshake, returning a
// provider.Provider backed by the resulting tcp.Client. The connection is
// plain TCP: wrapping it in an authenticated transport is the caller's
// responsibility per pkg/tcp's documented scope.
func buildTCP(ctx context.Context, c *TCPConfig) (provider.Provider, error) {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dctx, "tcp", c.Address)
	if err != nil {
		return nil, psycheerr.Wrap(psycheerr.Network, "providerconfig: dialing "+c.Address, err)
	}
	return tcp.Dial(dctx, conn, c.RunID, c.IdentityProof)
}

func buildWeighted(ctx context.Context, c *WeightedConfig, client *http.Client, log logging.Logger, m *metrics.HTTP) (provider.Provider, error) {
	if len(c.Entries) == 0 {
		return nil, psycheerr.New(psycheerr.ConfigError, "providerconfig: weighted config has no entries")
	}
	providers := make([]provider.Provider, len(c.Entries))
	weights := make([]float64, len(c.Entries))
	for i, e := range c.Entries {
		p, err := Build(ctx, e.Provider, client, log, m)
		if err != nil {
			return nil, err
		}
		providers[i] = p
		if e.Weight != nil {
			weights[i] = *e.Weight
		}
	}

	var entries []weighted.Entry
	var err error
	switch c.Kind {
	case WeightExplicit, "":
		raw := make([]weighted.Entry, len(providers))
		for i, p := range providers {
			raw[i] = weighted.Entry{Provider: p, Weight: weights[i]}
		}
		entries, err = weighted.ExplicitlyWeighted(raw)
	case WeightByLength:
		entries, err = weighted.ByLength(providers...)
	default:
		return nil, psycheerr.New(psycheerr.ConfigError, fmt.Sprintf("providerconfig: unknown weight kind %q", c.Kind))
	}
	if err != nil {
		return nil, err
	}

	return weighted.New(entries, c.VirtualLength, c.Shuffle.resolve())
}
