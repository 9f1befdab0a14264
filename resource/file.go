// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package resource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/z5labs/kiln/route"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// FallbackContentType is used when a file type can not be determined.
const FallbackContentType = "text/plain;charset=UTF-8"

var contentTypesByExtension = map[string]string{
	".css":  "text/css;charset=UTF-8",
	".html": "text/html;charset=UTF-8",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".js":   "text/javascript;charset=UTF-8",
	".json": "application/json",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".txt":  "text/plain;charset=UTF-8",
	".woff": "application/font-woff",
}

// NotADirectoryError is returned by [NewFile] when the root is not a directory.
type NotADirectoryError struct {
	Dir   string
	Cause error
}

// Error implements the [builtin.error] interface.
func (e NotADirectoryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("not a directory: %s: %s", e.Dir, e.Cause)
	}
	return fmt.Sprintf("not a directory: %s", e.Dir)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e NotADirectoryError) Unwrap() error {
	return e.Cause
}

// FileOption configures a [File] resource.
type FileOption func(*File)

// FileSystem sets the file system files are served from. The default
// is the operating system file system.
func FileSystem(fs afero.Fs) FileOption {
	return func(f *File) {
		f.fs = fs
	}
}

// DefaultSubpath sets the file served when the request does not bind a
// subpath, e.g. a route without a trailing wildcard.
func DefaultSubpath(subpath string) FileOption {
	return func(f *File) {
		f.defaultSubpath = subpath
	}
}

// File serves files below a directory. The file is selected by the
// subpath parameter bound by a trailing wildcard route.
type File struct {
	Base

	fs             afero.Fs
	dir            string
	defaultSubpath string
}

// NewFile returns a [File] resource rooted at dir.
func NewFile(dir string, opts ...FileOption) (*File, error) {
	f := &File{
		Base: Base{AllowedMethods: []string{http.MethodGet, http.MethodHead}},
		fs:   afero.NewOsFs(),
		dir:  dir,
	}
	for _, opt := range opts {
		opt(f)
	}

	ok, err := afero.IsDir(f.fs, dir)
	if err != nil {
		return nil, NotADirectoryError{Dir: dir, Cause: err}
	}
	if !ok {
		return nil, NotADirectoryError{Dir: dir}
	}
	return f, nil
}

type file struct {
	name string
	info fs.FileInfo
}

// Process implements the [Resource] interface. The entity is the
// resolved file.
func (f *File) Process(ctx context.Context, r *Request) (Entity, error) {
	subpath := r.Get(route.SubpathParam, f.defaultSubpath)
	if subpath == "" {
		return nil, BadRequestError{Reason: "Required parameter not found: " + route.SubpathParam}
	}
	if !strings.HasPrefix(subpath, "/") {
		return nil, BadRequestError{Reason: "Subpath must start with /"}
	}

	// Cleaning a rooted path drops every leading .. element.
	cleaned := path.Clean(subpath)
	name := filepath.Join(f.dir, filepath.FromSlash(cleaned))

	info, err := f.fs.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NotFoundError{Path: r.Path(), Cause: err}
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, NotFoundError{Path: r.Path()}
	}
	return file{name: name, info: info}, nil
}

// ETag implements the [Resource] interface. The tag fingerprints the
// modification time and size of the file.
func (f *File) ETag(ctx context.Context, r *Request, e Entity) (string, error) {
	fe, err := asFile(e)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x-%x", fe.info.ModTime().UnixNano(), fe.info.Size()), nil
}

// ContentType implements the [Resource] interface.
func (f *File) ContentType(ctx context.Context, r *Request, e Entity) (string, error) {
	fe, err := asFile(e)
	if err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(fe.name))
	if ct, ok := contentTypesByExtension[ext]; ok {
		return ct, nil
	}
	return f.sniff(fe.name), nil
}

func (f *File) sniff(name string) string {
	fh, err := f.fs.Open(name)
	if err != nil {
		return FallbackContentType
	}
	defer fh.Close()

	mt, err := mimetype.DetectReader(fh)
	if err != nil {
		return FallbackContentType
	}
	return mt.String()
}

// Render implements the [Resource] interface.
func (f *File) Render(ctx context.Context, r *Request, e Entity) ([]byte, error) {
	fe, err := asFile(e)
	if err != nil {
		return nil, err
	}

	b, err := afero.ReadFile(f.fs, fe.name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, NotFoundError{Path: r.Path(), Cause: err}
	}
	return b, err
}

// String implements the [fmt.Stringer] interface.
func (f *File) String() string {
	return fmt.Sprintf("File(%s)", f.dir)
}

func asFile(e Entity) (file, error) {
	fe, ok := e.(file)
	if !ok {
		return file{}, fmt.Errorf("resource: unexpected entity type %T", e)
	}
	return fe, nil
}
