// Package httpds implements the HTTP/object-store ranged-fetch back-end: a
// file catalogue discovered from an explicit URL list, a printf-style
// template over an integer range, or a public object-store bucket listing,
// served through coalesced parallel Range requests.
package httpds

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/lucasonchain/psyche/pkg/httpds/internal/rangeutil"
	"github.com/lucasonchain/psyche/pkg/logging"
	"github.com/lucasonchain/psyche/pkg/metrics"
	"github.com/lucasonchain/psyche/pkg/prng"
	"github.com/lucasonchain/psyche/pkg/psycheerr"
	"github.com/lucasonchain/psyche/pkg/token"
)

// discoveryConcurrency bounds the number of concurrent HEAD requests issued
// at construction time, mirroring the runner's per-host semaphore concept
// from its parallel-transport package, simplified to a single fan-out
// limiter since discovery happens once, not on the hot path.
const discoveryConcurrency = 16

// Backend is the HTTP/object-store provider.
type Backend struct {
	client    *http.Client
	seqLen    int
	tokenSize token.Size
	files     []token.FileInfo
	etags     []string
	pointers  []token.SequencePointer
	log       logging.Logger
	metrics   *metrics.HTTP
}

// Option configures optional Backend behavior beyond the constructors'
// required arguments.
type Option func(*Backend)

// WithMetrics attaches Prometheus counters for HEAD/Range requests and
// bytes fetched. Without this option the back-end records nothing.
func WithMetrics(m *metrics.HTTP) Option {
	return func(b *Backend) { b.metrics = m }
}

// NewFromURLs builds a catalogue from an explicit, ordered list of URLs.
// Sizes are discovered with concurrent HEAD requests; a discovery failure
// fails construction.
func NewFromURLs(ctx context.Context, client *http.Client, urls []string, seqLen int, tokenSize token.Size, shuffle token.Shuffle, log logging.Logger, opts ...Option) (*Backend, error) {
	if len(urls) == 0 {
		return nil, psycheerr.New(psycheerr.ConfigError, "httpds: empty URL list")
	}
	client = withDefault(client)
	b := &Backend{}
	for _, o := range opts {
		o(b)
	}
	sizes, etags, err := headSizes(ctx, client, urls, b.metrics)
	if err != nil {
		return nil, err
	}
	files := make([]token.FileInfo, len(urls))
	for i, u := range urls {
		files[i] = token.FileInfo{Locator: u, Size: sizes[i]}
	}
	return build(b, client, files, etags, seqLen, tokenSize, shuffle, log)
}

// NewFromTemplate builds a catalogue from a template whose first "{}"
// placeholder is replaced by each index of the inclusive integer range
// [start, end]. If pad > 0, indices are zero-padded to pad digits (e.g.
// template "shard-{}.ds" with pad=5 yields "shard-00001.ds" for index 1).
func NewFromTemplate(ctx context.Context, client *http.Client, template string, start, end, pad int, seqLen int, tokenSize token.Size, shuffle token.Shuffle, log logging.Logger, opts ...Option) (*Backend, error) {
	if end < start {
		return nil, psycheerr.New(psycheerr.ConfigError, fmt.Sprintf("httpds: invalid range [%d,%d]", start, end))
	}
	urls := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		idx := fmt.Sprintf("%d", i)
		if pad > 0 {
			idx = fmt.Sprintf("%0*d", pad, i)
		}
		urls = append(urls, strings.Replace(template, "{}", idx, 1))
	}
	return NewFromURLs(ctx, client, urls, seqLen, tokenSize, shuffle, log, opts...)
}

// NewFromBucket lists a public Google Cloud Storage bucket anonymously
// (storage.WithoutAuthentication()), optionally filtered to a path prefix,
// and builds a catalogue ordered by object name for determinism. Because
// each listed object already carries its size, no redundant HEAD round-trip
// is issued for this variant: the listing is the size discovery.
func NewFromBucket(ctx context.Context, bucket, prefix string, seqLen int, tokenSize token.Size, shuffle token.Shuffle, log logging.Logger, opts ...Option) (*Backend, error) {
	cl, err := storage.NewClient(ctx, option.WithoutAuthentication())
	if err != nil {
		return nil, psycheerr.Wrap(psycheerr.Network, "httpds: opening anonymous GCS client", err)
	}
	defer cl.Close()

	var objs []*storage.ObjectAttrs
	it := cl.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, psycheerr.Wrap(psycheerr.Network, "httpds: listing bucket "+bucket, err)
		}
		objs = append(objs, attrs)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Name < objs[j].Name })

	if len(objs) == 0 {
		return nil, psycheerr.New(psycheerr.ConfigError, fmt.Sprintf("httpds: bucket %s (prefix %q) has no objects", bucket, prefix))
	}

	files := make([]token.FileInfo, len(objs))
	etags := make([]string, len(objs))
	for i, o := range objs {
		files[i] = token.FileInfo{
			Locator: fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, o.Name),
			Size:    o.Size,
		}
		etags[i] = o.Etag
	}
	b := &Backend{}
	for _, o := range opts {
		o(b)
	}
	return build(b, withDefault(nil), files, etags, seqLen, tokenSize, shuffle, log)
}

func withDefault(c *http.Client) *http.Client {
	if c == nil {
		return http.DefaultClient
	}
	return c
}

// headSizes issues one HEAD request per URL, bounded to discoveryConcurrency
// concurrent in flight, and returns sizes and ETags (empty string if the
// server sent none) in input order. The ETag is later used as an If-Range
// precondition on the ranged GETs, so a file that changes between discovery
// and fetch yields a full response instead of bytes spliced from two
// different versions.
func headSizes(ctx context.Context, client *http.Client, urls []string, m *metrics.HTTP) ([]int64, []string, error) {
	sizes := make([]int64, len(urls))
	etags := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(discoveryConcurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			if m != nil {
				m.HeadRequests.Inc()
			}
			req, err := http.NewRequestWithContext(gctx, http.MethodHead, u, nil)
			if err != nil {
				return psycheerr.Wrap(psycheerr.ConfigError, "httpds: building HEAD request for "+u, err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return psycheerr.Wrap(psycheerr.Network, "httpds: HEAD "+u, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return psycheerr.WrapHTTPStatus(resp.StatusCode, "httpds: HEAD "+u)
			}
			if !rangeutil.SupportsRange(resp.Header) {
				return psycheerr.New(psycheerr.ConfigError, "httpds: server does not advertise Accept-Ranges: bytes for "+u)
			}
			if resp.ContentLength < 0 {
				return psycheerr.New(psycheerr.ConfigError, "httpds: missing Content-Length for "+u)
			}
			sizes[i] = resp.ContentLength
			etags[i] = resp.Header.Get("ETag")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return sizes, etags, nil
}

func build(b *Backend, client *http.Client, files []token.FileInfo, etags []string, seqLen int, tokenSize token.Size, shuffle token.Shuffle, log logging.Logger) (*Backend, error) {
	pointers, err := token.BuildPointers(files, seqLen, tokenSize)
	if err != nil {
		return nil, err
	}
	if seed, ok := shuffle.IsSeeded(); ok {
		prng.New(seed).Shuffle(len(pointers), func(i, j int) {
			pointers[i], pointers[j] = pointers[j], pointers[i]
		})
	}
	b.client = client
	b.seqLen = seqLen
	b.tokenSize = tokenSize
	b.files = files
	b.etags = etags
	b.pointers = pointers
	b.log = logging.Component(log, "httpds")
	b.log.WithField("files", len(files)).WithField("sequences", len(pointers)).Info("http back-end constructed")
	return b, nil
}

// NumSequences returns the number of sequences available from this
// back-end, fixed at construction time.
func (b *Backend) NumSequences() uint64 {
	return uint64(len(b.pointers))
}
