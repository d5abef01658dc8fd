// Package classpath is the external collaborator the core class loader
// consults to turn a class name into class-file bytes. It is
// referenced only through the Reader contract below; the concrete
// directory and jmod/jar readers here exist so the core is runnable,
// not because the core depends on their internals.
package classpath

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Reader locates the bytes of a named class (internal form, e.g.
// "java/lang/String") somewhere on a classpath entry.
type Reader interface {
	// ReadClass returns the raw .class bytes for name, or an error if
	// this entry does not contain it.
	ReadClass(name string) ([]byte, error)
}

// DirReader reads classes from an exploded directory of .class files,
// e.g. a -cp entry that is a plain directory.
type DirReader struct {
	Root string
}

func NewDirReader(root string) *DirReader { return &DirReader{Root: root} }

func (r *DirReader) ReadClass(name string) ([]byte, error) {
	path := filepath.Join(r.Root, filepath.FromSlash(name)+".class")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classpath: reading %s: %w", path, err)
	}
	return data, nil
}

// ZipReader reads classes out of a .jar (or the class-data section of
// a .jmod) using stdlib archive/zip. jmodHeaderSkip is 4 for a .jmod
// file (whose payload starts after the "JM\x01\x00" magic) and 0 for a
// plain .jar/.zip.
type ZipReader struct {
	path           string
	jmodHeaderSkip int
	prefix         string // "classes/" for jmod entries, "" for jar entries

	zr *zip.Reader
}

// NewJarReader opens a .jar/.zip classpath entry.
func NewJarReader(path string) (*ZipReader, error) {
	return newZipReader(path, 0, "")
}

// NewJmodReader opens a JDK .jmod module file; class bytes live under
// its "classes/" entry prefix, and the file itself is a zip archive
// preceded by a 4-byte "JM\x01\x00" header.
func NewJmodReader(path string) (*ZipReader, error) {
	return newZipReader(path, 4, "classes/")
}

func newZipReader(path string, headerSkip int, prefix string) (*ZipReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("classpath: opening %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("classpath: stat %s: %w", path, err)
	}

	data := make([]byte, stat.Size())
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, fmt.Errorf("classpath: reading %s: %w", path, err)
	}
	data = data[headerSkip:]

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("classpath: opening zip %s: %w", path, err)
	}

	return &ZipReader{path: path, jmodHeaderSkip: headerSkip, prefix: prefix, zr: zr}, nil
}

func (r *ZipReader) ReadClass(name string) ([]byte, error) {
	target := r.prefix + name + ".class"
	for _, file := range r.zr.File {
		if file.Name == target {
			rc, err := file.Open()
			if err != nil {
				return nil, fmt.Errorf("classpath: opening %s in %s: %w", target, r.path, err)
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("classpath: class %s not found in %s", name, r.path)
}

// ChainReader tries each Reader in order, returning the first hit.
// This is the shape a -cp argument with multiple entries resolves to.
type ChainReader struct {
	Readers []Reader
}

func (r *ChainReader) ReadClass(name string) ([]byte, error) {
	var lastErr error
	for _, reader := range r.Readers {
		data, err := reader.ReadClass(name)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("classpath: no readers configured")
	}
	return nil, lastErr
}
