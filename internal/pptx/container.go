package pptx

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var slidePartPattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// Container is an indexed, read-only view over a zip package. Part bytes are
// decompressed on demand; nothing is cached.
type Container struct {
	limits Limits
	names  []string
	files  map[string]*zip.File
}

// OpenContainer indexes data as a zip package. Part names are normalized to
// forward-slash paths without a leading slash. The container must hold at
// least one ppt/slides/slideN.xml part.
func OpenContainer(data []byte, limits Limits) (*Container, error) {
	limits = limits.withDefaults()
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if errors.Is(err, zip.ErrInsecurePath) && reader != nil {
		// Names are vetted below by normalizePartName.
		err = nil
	}
	if err != nil {
		return nil, parseErr("", err)
	}
	if len(reader.File) > limits.MaxParts {
		return nil, parseErr("", fmt.Errorf("%w: %d entries, limit %d", ErrTooManyParts, len(reader.File), limits.MaxParts))
	}

	c := &Container{
		limits: limits,
		names:  make([]string, 0, len(reader.File)),
		files:  make(map[string]*zip.File, len(reader.File)),
	}
	var total uint64
	for _, f := range reader.File {
		if f == nil || strings.HasSuffix(f.Name, "/") {
			continue
		}
		name, ok := normalizePartName(f.Name)
		if !ok {
			return nil, parseErr(f.Name, ErrUnsafePath)
		}
		if _, dup := c.files[name]; dup {
			return nil, parseErr(name, ErrDuplicatePart)
		}
		if f.UncompressedSize64 > uint64(limits.MaxPartBytes) {
			return nil, parseErr(name, fmt.Errorf("%w: %d bytes", ErrPartTooLarge, f.UncompressedSize64))
		}
		total += f.UncompressedSize64
		if total > uint64(limits.MaxTotalBytes) {
			return nil, parseErr(name, ErrContainerTooLarge)
		}
		c.files[name] = f
		c.names = append(c.names, name)
	}
	if len(c.SlideParts()) == 0 {
		return nil, parseErr("ppt/slides", ErrNoSlides)
	}
	return c, nil
}

func normalizePartName(raw string) (string, bool) {
	name := strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/")
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return "", false
	}
	cleaned := path.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}

// Parts returns every part name in archive order.
func (c *Container) Parts() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Has reports whether the named part exists.
func (c *Container) Has(name string) bool {
	_, ok := c.files[name]
	return ok
}

// PartSize returns the declared decompressed size of a part.
func (c *Container) PartSize(name string) (int64, bool) {
	f, ok := c.files[name]
	if !ok {
		return 0, false
	}
	return int64(f.UncompressedSize64), true
}

// Read decompresses a part. Reads are bounded by Limits.MaxPartBytes even
// when the zip header under-reports the size.
func (c *Container) Read(name string) ([]byte, error) {
	f, ok := c.files[name]
	if !ok {
		return nil, parseErr(name, ErrPartNotFound)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, parseErr(name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, c.limits.MaxPartBytes+1))
	if err != nil {
		return nil, parseErr(name, err)
	}
	if int64(len(data)) > c.limits.MaxPartBytes {
		return nil, parseErr(name, ErrPartTooLarge)
	}
	return data, nil
}

// SlideParts returns ppt/slides/slideN.xml part names sorted by N. Gaps in
// the numbering are tolerated.
func (c *Container) SlideParts() []string {
	type numbered struct {
		name string
		n    int
	}
	var found []numbered
	for _, name := range c.names {
		m := slidePartPattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		found = append(found, numbered{name: name, n: n})
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].n < found[j].n })
	out := make([]string, len(found))
	for i, f := range found {
		out[i] = f.name
	}
	return out
}
