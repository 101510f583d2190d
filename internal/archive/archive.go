// Package archive provides random-access reads of MVR and GDTF containers.
//
// Both formats are ZIP archives with a fixed root descriptor entry. A
// Container keeps the archive open (memory-mapped when backed by a local file)
// so entries can be re-read after the initial scan, which fixture-type
// resolution relies on.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-git/go-billy/v5"
	"golang.org/x/text/cases"

	"github.com/agentic-research/rigkit/api"
)

// Format identifies which root descriptor a container carries.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatMVR
	FormatGDTF
)

func (f Format) String() string {
	switch f {
	case FormatMVR:
		return "mvr"
	case FormatGDTF:
		return "gdtf"
	}
	return "unknown"
}

// Descriptor entry names.
const (
	MVRDescriptor  = "GeneralSceneDescription.xml"
	GDTFDescriptor = "description.xml"
)

// DescriptorName returns the root entry name for f.
func DescriptorName(f Format) string {
	switch f {
	case FormatMVR:
		return MVRDescriptor
	case FormatGDTF:
		return GDTFDescriptor
	}
	return ""
}

// ErrClosed is returned by reads on a closed container.
var ErrClosed = errors.New("archive: container closed")

// Container is an open archive. It is safe for concurrent reads.
type Container struct {
	name    string
	size    int64
	ra      io.ReaderAt
	zr      *zip.Reader
	entries []string
	exact   map[string]*zip.File
	clean   map[string]*zip.File
	folded  map[string]*zip.File
	dupes   map[string]int
	reads   map[string]*atomic.Int64

	mu     sync.RWMutex
	closer io.Closer
	closed bool
}

// Open opens an archive through a billy filesystem. billy files are
// io.ReaderAt, so entries are read in place without buffering the archive.
func Open(fsys billy.Filesystem, name string) (*Container, error) {
	info, err := fsys.Stat(name)
	if err != nil {
		return nil, notFound("open", name, err)
	}
	f, err := fsys.Open(name)
	if err != nil {
		return nil, notFound("open", name, err)
	}
	c, err := newContainer(name, f, info.Size(), f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return c, nil
}

// OpenFile opens an archive on the local filesystem, memory-mapping it where
// the platform allows.
func OpenFile(filename string) (*Container, error) {
	data, closer, err := mapFile(filename)
	if err != nil {
		return nil, notFound("open", filename, err)
	}
	c, err := newContainer(filename, bytes.NewReader(data), int64(len(data)), closer)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return c, nil
}

// OpenBytes opens an in-memory archive. name labels the container in
// diagnostics and resolver lookups.
func OpenBytes(name string, data []byte) (*Container, error) {
	return newContainer(name, bytes.NewReader(data), int64(len(data)), nil)
}

func newContainer(name string, r io.ReaderAt, size int64, closer io.Closer) (*Container, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, &api.Error{Kind: api.ErrFormat, Op: "open archive", Path: name, Err: err}
	}
	c := &Container{
		name:   name,
		size:   size,
		ra:     r,
		zr:     zr,
		exact:  make(map[string]*zip.File, len(zr.File)),
		clean:  make(map[string]*zip.File, len(zr.File)),
		folded: make(map[string]*zip.File, len(zr.File)),
		dupes:  map[string]int{},
		reads:  make(map[string]*atomic.Int64, len(zr.File)),
		closer: closer,
	}
	fold := cases.Fold()
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		if _, dup := c.exact[f.Name]; dup {
			c.dupes[f.Name]++
			continue
		}
		c.entries = append(c.entries, f.Name)
		c.exact[f.Name] = f
		c.reads[f.Name] = new(atomic.Int64)
		cn := cleanName(f.Name)
		if _, ok := c.clean[cn]; !ok {
			c.clean[cn] = f
		}
		fn := fold.String(cn)
		if _, ok := c.folded[fn]; !ok {
			c.folded[fn] = f
		}
	}
	return c, nil
}

func cleanName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}

// Name returns the label the container was opened with.
func (c *Container) Name() string { return c.name }

// Size returns the archive size in bytes.
func (c *Container) Size() int64 { return c.size }

// Entries lists file entries in archive order. Directories are omitted.
func (c *Container) Entries() []string {
	out := make([]string, len(c.entries))
	copy(out, c.entries)
	return out
}

// Lookup resolves name to the stored entry name: exact match first, then with
// separators normalized, then case-folded.
func (c *Container) Lookup(name string) (string, bool) {
	f := c.lookup(name)
	if f == nil {
		return "", false
	}
	return f.Name, true
}

func (c *Container) lookup(name string) *zip.File {
	if f, ok := c.exact[name]; ok {
		return f
	}
	cn := cleanName(name)
	if f, ok := c.clean[cn]; ok {
		return f
	}
	if f, ok := c.folded[cases.Fold().String(cn)]; ok {
		return f
	}
	return nil
}

// Has reports whether an entry resolves for name.
func (c *Container) Has(name string) bool { return c.lookup(name) != nil }

// ReadEntry returns the decompressed contents of an entry.
func (c *Container) ReadEntry(name string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, &api.Error{Kind: api.ErrNotFound, Op: "read entry", Path: name, Err: ErrClosed}
	}
	f := c.lookup(name)
	if f == nil {
		return nil, &api.Error{Kind: api.ErrNotFound, Op: "read entry", Path: name,
			Err: fmt.Errorf("no entry %q in %s", name, c.name)}
	}
	c.reads[f.Name].Add(1)
	rc, err := f.Open()
	if err != nil {
		return nil, &api.Error{Kind: api.ErrFormat, Op: "read entry", Path: f.Name, Err: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &api.Error{Kind: api.ErrFormat, Op: "read entry", Path: f.Name, Err: err}
	}
	return data, nil
}

// Raw returns the archive bytes as stored, for copying the container into
// another archive unchanged.
func (c *Container) Raw() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, &api.Error{Kind: api.ErrNotFound, Op: "read archive", Path: c.name, Err: ErrClosed}
	}
	buf := make([]byte, c.size)
	if _, err := c.ra.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, &api.Error{Kind: api.ErrFormat, Op: "read archive", Path: c.name, Err: err}
	}
	return buf, nil
}

// ReadCount returns how many times an entry has been read.
func (c *Container) ReadCount(name string) int {
	f := c.lookup(name)
	if f == nil {
		return 0
	}
	return int(c.reads[f.Name].Load())
}

// Descriptor detects the container format from its root descriptor entry.
// A missing descriptor is NotFound; a descriptor stored more than once is a
// format error.
func (c *Container) Descriptor() (Format, string, error) {
	switch {
	case c.hasRoot(MVRDescriptor):
		name, err := c.DescriptorFor(FormatMVR)
		return FormatMVR, name, err
	case c.hasRoot(GDTFDescriptor):
		name, err := c.DescriptorFor(FormatGDTF)
		return FormatGDTF, name, err
	}
	return FormatUnknown, "", &api.Error{Kind: api.ErrNotFound, Op: "find descriptor", Path: c.name,
		Err: fmt.Errorf("neither %s nor %s present", MVRDescriptor, GDTFDescriptor)}
}

// DescriptorFor returns the stored name of the root descriptor for format f.
func (c *Container) DescriptorFor(f Format) (string, error) {
	want := DescriptorName(f)
	var found []string
	fold := cases.Fold()
	for _, e := range c.entries {
		if fold.String(cleanName(e)) == fold.String(want) {
			found = append(found, e)
		}
	}
	switch {
	case len(found) == 0:
		return "", &api.Error{Kind: api.ErrNotFound, Op: "find descriptor", Path: c.name,
			Err: fmt.Errorf("%s not present", want)}
	case len(found) > 1 || c.dupes[found[0]] > 0:
		return "", &api.Error{Kind: api.ErrFormat, Op: "find descriptor", Path: c.name,
			Err: fmt.Errorf("%s present more than once", want)}
	}
	return found[0], nil
}

func (c *Container) hasRoot(name string) bool {
	f := c.lookup(name)
	return f != nil && !strings.Contains(cleanName(f.Name), "/")
}

// Close releases the underlying file or mapping. Reads after Close fail.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func notFound(op, name string, err error) error {
	return &api.Error{Kind: api.ErrNotFound, Op: op, Path: name, Err: err}
}
