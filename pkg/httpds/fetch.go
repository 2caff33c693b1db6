package httpds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lucasonchain/psyche/pkg/httpds/internal/rangeutil"
	"github.com/lucasonchain/psyche/pkg/psycheerr"
	"github.com/lucasonchain/psyche/pkg/rangeset"
	"github.com/lucasonchain/psyche/pkg/token"
)

// subRequestTimeout is the per-range-request deadline. Higher-level retry
// past this deadline is the caller's responsibility and is not
// implemented here.
const subRequestTimeout = 5 * time.Second

// GetSamples resolves every index in id to its SequencePointer, groups
// pointers that share a file and whose byte ranges are contiguous into a
// single HTTP range request, issues all groups in parallel, and reassembles
// the per-sequence token slices in the batch's order. Every sub-request
// derives its deadline from ctx, so cancelling ctx cancels every
// outstanding sub-request. The sub-requests share one errgroup context:
// the first sub-request to fail (including by timing out) cancels the
// others, and GetSamples returns that first error.
func (b *Backend) GetSamples(ctx context.Context, id token.BatchId) ([][]token.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id.End >= b.NumSequences() {
		return nil, psycheerr.New(psycheerr.OutOfRange, fmt.Sprintf(
			"batch [%d,%d] exceeds num_sequences %d", id.Start, id.End, b.NumSequences()))
	}

	width := int(id.Width())
	pointers := make([]token.SequencePointer, width)
	for i := 0; i < width; i++ {
		pointers[i] = b.pointers[id.Start+uint64(i)]
	}

	seqBytes := b.tokenSize.SequenceBytes(b.seqLen)
	groups := coalesce(pointers, seqBytes)
	out := make([][]token.Token, width)

	g, gctx := errgroup.WithContext(ctx)
	for _, grp := range groups {
		grp := grp
		g.Go(func() error {
			buf, err := b.fetchRange(gctx, pointers[grp.Start].FileIndex,
				pointers[grp.Start].ByteOffset,
				pointers[grp.Start].ByteOffset+int64(grp.Len())*seqBytes-1)
			if err != nil {
				return err
			}
			for i := grp.Start; i <= grp.End; i++ {
				off := int64(i-grp.Start) * seqBytes
				out[i] = b.tokenSize.Decode(buf[off : off+seqBytes])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// coalesce groups positions of pointers that share a file index and whose
// byte offsets advance by exactly one sequence width, so each group becomes
// a single contiguous Range request instead of one request per sequence.
func coalesce(pointers []token.SequencePointer, seqBytes int64) []rangeset.Run {
	sameFile := rangeset.GroupEqual(fileIndices(pointers))
	var runs []rangeset.Run
	for _, fg := range sameFile {
		sub := pointers[fg.Start : fg.End+1]
		cr := rangeset.GroupBy(len(sub), func(i, j int) bool {
			return sub[j].ByteOffset == sub[i].ByteOffset+seqBytes
		})
		for _, r := range cr {
			runs = append(runs, rangeset.Run{Start: fg.Start + r.Start, End: fg.Start + r.End})
		}
	}
	return runs
}

func fileIndices(pointers []token.SequencePointer) []int {
	out := make([]int, len(pointers))
	for i, p := range pointers {
		out[i] = p.FileIndex
	}
	return out
}

// fetchRange issues a single Range request for [start, end] (inclusive)
// against the file at fileIndex, enforcing the per-request timeout, and
// returns the first end-start+1 bytes of the response body. It fails with
// Network, Timeout, HTTPStatus, or Truncated (and ConfigError if the
// request cannot be built).
func (b *Backend) fetchRange(ctx context.Context, fileIndex int, start, end int64) ([]byte, error) {
	subCtx, cancel := context.WithTimeout(ctx, subRequestTimeout)
	defer cancel()

	loc := b.files[fileIndex].Locator
	req, err := http.NewRequestWithContext(subCtx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, psycheerr.Wrap(psycheerr.ConfigError, "httpds: building GET request for "+loc, err)
	}
	rangeutil.ScrubConditionalHeaders(req.Header)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	if etag := b.etags[fileIndex]; etag != "" && !rangeutil.IsWeakETag(etag) {
		req.Header.Set("If-Range", etag)
	}

	if b.metrics != nil {
		b.metrics.RangeRequests.Inc()
	}
	resp, err := b.client.Do(req)
	if err != nil {
		if subCtx.Err() != nil {
			return nil, psycheerr.Wrap(psycheerr.Timeout, "httpds: GET "+loc, err)
		}
		return nil, psycheerr.Wrap(psycheerr.Network, "httpds: GET "+loc, err)
	}
	defer resp.Body.Close()

	want := end - start + 1
	switch resp.StatusCode {
	case http.StatusPartialContent:
		gotStart, gotEnd, _, ok := rangeutil.ParseContentRange(resp.Header.Get("Content-Range"))
		if ok && (gotStart != start || gotEnd != end) {
			return nil, psycheerr.New(psycheerr.Truncated, fmt.Sprintf(
				"httpds: %s returned Content-Range [%d,%d], wanted [%d,%d]", loc, gotStart, gotEnd, start, end))
		}
	case http.StatusOK:
		// The server ignored Range (or If-Range failed and it fell back to
		// the full body). That is only safe to consume when the caller
		// actually wanted the whole file from byte 0.
		if start != 0 {
			return nil, psycheerr.New(psycheerr.Truncated, fmt.Sprintf(
				"httpds: %s returned 200 (full body) for a non-zero range start %d", loc, start))
		}
	default:
		return nil, psycheerr.WrapHTTPStatus(resp.StatusCode, "httpds: GET "+loc)
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		if subCtx.Err() != nil {
			return nil, psycheerr.Wrap(psycheerr.Timeout, "httpds: reading response for "+loc, err)
		}
		return nil, psycheerr.Wrap(psycheerr.Network, "httpds: reading response for "+loc, err)
	}
	if int64(len(buf)) < want {
		return nil, psycheerr.New(psycheerr.Truncated, fmt.Sprintf(
			"httpds: %s returned %d bytes, wanted %d", loc, len(buf), want))
	}
	if b.metrics != nil {
		b.metrics.BytesFetched.Add(float64(want))
	}
	return buf[:want], nil
}
