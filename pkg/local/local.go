// Package local implements the local-filesystem back-end: a directory of
// flat token files memory-mapped read-only for the lifetime of the
// provider, addressed through pkg/token's pointer vector.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dolthub/mmap-go"

	"github.com/lucasonchain/psyche/pkg/logging"
	"github.com/lucasonchain/psyche/pkg/prng"
	"github.com/lucasonchain/psyche/pkg/psycheerr"
	"github.com/lucasonchain/psyche/pkg/token"
)

// recognizedExt is the set of file extensions scanned for token data:
// ".npy", ".bin", ".ds". ".npy" headers are not sniffed; files are
// treated as flat token arrays regardless of extension.
var recognizedExt = map[string]bool{
	".npy": true,
	".bin": true,
	".ds":  true,
}

// Backend is the local-filesystem provider. It owns one memory map per
// catalogue file for its entire lifetime; callers must call Close when
// done.
type Backend struct {
	seqLen    int
	tokenSize token.Size
	maps      []mmap.MMap
	pointers  []token.SequencePointer
	log       logging.Logger
}

// Open scans dir for files with a recognized extension, memory-maps each
// one read-only, builds the sequence-pointer vector, and applies shuffle.
// Files are ordered lexicographically by path, matching os.ReadDir's
// existing order but sorted explicitly to make the "stable by path"
// contract independent of that implementation detail.
func Open(dir string, seqLen int, tokenSize token.Size, shuffle token.Shuffle, log logging.Logger) (*Backend, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, psycheerr.Wrap(psycheerr.ConfigError, fmt.Sprintf("reading directory %s", dir), err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if recognizedExt[filepath.Ext(e.Name())] {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, psycheerr.New(psycheerr.ConfigError, fmt.Sprintf("no recognized token files under %s", dir))
	}

	b := &Backend{seqLen: seqLen, tokenSize: tokenSize, log: logging.Component(log, "local")}
	files := make([]token.FileInfo, len(paths))
	for i, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			b.closeMaps()
			return nil, psycheerr.Wrap(psycheerr.ConfigError, fmt.Sprintf("opening %s", p), err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			b.closeMaps()
			return nil, psycheerr.Wrap(psycheerr.ConfigError, fmt.Sprintf("stat %s", p), err)
		}
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		// The mapping holds its own reference to the file descriptor;
		// the *os.File itself is no longer needed once mapped.
		f.Close()
		if err != nil {
			b.closeMaps()
			return nil, psycheerr.Wrap(psycheerr.ConfigError, fmt.Sprintf("mmap %s", p), err)
		}
		b.maps = append(b.maps, m)
		files[i] = token.FileInfo{Locator: p, Size: info.Size()}
	}

	pointers, err := token.BuildPointers(files, seqLen, tokenSize)
	if err != nil {
		b.closeMaps()
		return nil, err
	}

	if seed, ok := shuffle.IsSeeded(); ok {
		prng.New(seed).Shuffle(len(pointers), func(i, j int) {
			pointers[i], pointers[j] = pointers[j], pointers[i]
		})
	}
	b.pointers = pointers

	b.log.WithField("files", len(files)).WithField("sequences", len(pointers)).Info("local back-end opened")
	return b, nil
}

// NumSequences returns the number of sequences available from this
// back-end, fixed at construction time.
func (b *Backend) NumSequences() uint64 {
	return uint64(len(b.pointers))
}

// GetSamples resolves every index in id to its SequencePointer and slices
// the corresponding bytes directly out of the memory-mapped file, in the
// interval's order. It fails with OutOfRange if any index is
// >= NumSequences().
func (b *Backend) GetSamples(ctx context.Context, id token.BatchId) ([][]token.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id.End >= b.NumSequences() {
		return nil, psycheerr.New(psycheerr.OutOfRange, fmt.Sprintf(
			"batch [%d,%d] exceeds num_sequences %d", id.Start, id.End, b.NumSequences()))
	}

	seqBytes := b.tokenSize.SequenceBytes(b.seqLen)
	out := make([][]token.Token, 0, id.Width())
	for idx := id.Start; idx <= id.End; idx++ {
		p := b.pointers[idx]
		buf := b.maps[p.FileIndex][p.ByteOffset : p.ByteOffset+seqBytes]
		out = append(out, b.tokenSize.Decode(buf))
	}
	return out, nil
}

// Close unmaps every file this back-end opened. It must be called exactly
// once; GetSamples after Close has undefined behavior, matching the
// lifecycle note that memory maps live exactly as long as the back-end.
func (b *Backend) Close() error {
	return b.closeMaps()
}

func (b *Backend) closeMaps() error {
	var firstErr error
	for _, m := range b.maps {
		if m == nil {
			continue
		}
		if err := m.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.maps = nil
	return firstErr
}
