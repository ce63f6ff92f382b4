// Package discovery maps a site directory tree onto route patterns and
// middleware entries. Files under routes/ and api/ become path patterns
// where bracketed segments declare parameters, a ".<method>" filename
// suffix scopes the route to one HTTP method, and files under
// middleware/ register global interceptors ordered by an optional
// numeric filename prefix.
package discovery

import (
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/routefs/routefs/internal/util"
)

// Directory names recognized at the site root.
const (
	RoutesDir     = "routes"
	APIDir        = "api"
	MiddlewareDir = "middleware"
)

// indexBase is the filename that maps to its directory's own path.
const indexBase = "index"

// methodSuffixes are the recognized ".<method>" filename suffixes.
var methodSuffixes = map[string]string{
	"get":     "GET",
	"post":    "POST",
	"put":     "PUT",
	"delete":  "DELETE",
	"patch":   "PATCH",
	"head":    "HEAD",
	"options": "OPTIONS",
}

// RouteFile is one discovered route handler file.
type RouteFile struct {
	// Pattern is the route pattern derived from the file path, with
	// bracket segments intact.
	Pattern string

	// Method is the HTTP method scope, empty for any method.
	Method string

	// Ref is the handler reference: the file path relative to the site
	// root, without the code extension.
	Ref string

	// Path is the discovered file's path relative to the site root.
	Path string
}

// MiddlewareFile is one discovered global middleware file.
type MiddlewareFile struct {
	// Name is the filename without extension or numeric prefix.
	Name string

	// Ref is the middleware reference relative to the site root.
	Ref string

	// Order is the numeric filename prefix when present.
	Order int

	// Prefixed reports whether the filename carried a numeric prefix.
	Prefixed bool
}

// Manifest is the result of scanning a site directory.
type Manifest struct {
	Routes     []RouteFile
	Middleware []MiddlewareFile
}

// Scan walks the site filesystem and collects route and middleware
// files. Walk order is lexical, which fixes the listing order that
// unprefixed middleware sorts by.
func Scan(fsys fs.FS) (*Manifest, error) {
	manifest := &Manifest{}

	for _, dir := range []string{RoutesDir, APIDir} {
		prefix := ""
		if dir == APIDir {
			prefix = "/api"
		}
		if err := scanRoutes(fsys, dir, prefix, manifest); err != nil {
			return nil, err
		}
	}

	if err := scanMiddleware(fsys, manifest); err != nil {
		return nil, err
	}

	return manifest, nil
}

func scanRoutes(fsys fs.FS, dir, prefix string, manifest *Manifest) error {
	if _, err := fs.Stat(fsys, dir); err != nil {
		// A missing convention directory is not an error.
		return nil //nolint:nilerr // absence is the common case
	}

	return fs.WalkDir(fsys, dir, func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		route, err := routeFromFile(dir, prefix, filePath)
		if err != nil {
			return err
		}
		manifest.Routes = append(manifest.Routes, route)
		return nil
	})
}

// routeFromFile derives a route pattern from a file path under a
// convention directory.
func routeFromFile(dir, prefix, filePath string) (RouteFile, error) {
	rel := strings.TrimPrefix(filePath, dir+"/")
	if rel == filePath {
		rel = path.Base(filePath)
	}

	base, method := splitMethodSuffix(path.Base(rel))
	if method == "" {
		// The last extension was a code extension; the method suffix,
		// if any, sits before it.
		base, method = splitMethodSuffix(stripExtension(base))
	}

	segments := strings.Split(path.Dir(rel), "/")
	if segments[0] == "." {
		segments = segments[:0]
	}
	if base != indexBase {
		segments = append(segments, base)
	}

	pattern := prefix + "/" + strings.Join(segments, "/")
	pattern = util.NormalizePath(pattern)

	return RouteFile{
		Pattern: pattern,
		Method:  method,
		Ref:     refFromPath(filePath),
		Path:    filePath,
	}, nil
}

// refFromPath strips the code extension from a file path, keeping any
// method suffix so refs stay unique per method-scoped file.
func refFromPath(filePath string) string {
	ext := path.Ext(filePath)
	if ext == "" || strings.HasSuffix(filePath, "]") {
		return filePath
	}
	if _, isMethod := methodSuffixes[strings.ToLower(strings.TrimPrefix(ext, "."))]; isMethod {
		return filePath
	}
	return strings.TrimSuffix(filePath, ext)
}

// stripExtension removes the final extension from a filename. Bracket
// segments like "[...name]" contain dots that are not extensions.
func stripExtension(name string) string {
	ext := path.Ext(name)
	if ext == "" || ext == name || strings.HasSuffix(name, "]") {
		return name
	}
	return strings.TrimSuffix(name, ext)
}

// splitMethodSuffix removes a trailing ".<method>" marker, returning the
// remaining base name and the HTTP method it selects.
func splitMethodSuffix(base string) (string, string) {
	i := strings.LastIndex(base, ".")
	if i < 0 {
		return base, ""
	}
	if method, ok := methodSuffixes[strings.ToLower(base[i+1:])]; ok {
		return base[:i], method
	}
	return base, ""
}

func scanMiddleware(fsys fs.FS, manifest *Manifest) error {
	if _, err := fs.Stat(fsys, MiddlewareDir); err != nil {
		return nil //nolint:nilerr // absence is the common case
	}

	entries, err := fs.ReadDir(fsys, MiddlewareDir)
	if err != nil {
		return fmt.Errorf("read middleware dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		base := stripExtension(entry.Name())
		name, order, prefixed := splitOrderPrefix(base)

		manifest.Middleware = append(manifest.Middleware, MiddlewareFile{
			Name:     name,
			Ref:      path.Join(MiddlewareDir, stripExtension(entry.Name())),
			Order:    order,
			Prefixed: prefixed,
		})
	}

	return nil
}

// splitOrderPrefix parses a "<number>-name" or "<number>.name" filename
// prefix into an explicit ordering key.
func splitOrderPrefix(base string) (string, int, bool) {
	for i := 0; i < len(base); i++ {
		if base[i] >= '0' && base[i] <= '9' {
			continue
		}
		if i > 0 && (base[i] == '-' || base[i] == '.' || base[i] == '_') {
			order, err := strconv.Atoi(base[:i])
			if err != nil {
				return base, 0, false
			}
			return base[i+1:], order, true
		}
		return base, 0, false
	}
	return base, 0, false
}
