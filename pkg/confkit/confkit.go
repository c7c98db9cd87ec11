package confkit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/conf"
	"gopkg.in/yaml.v3"
)

// ResolvePath expands environment variables in file and joins it with base
// unless the result is already absolute.
func ResolvePath(base, file string) string {
	file = os.ExpandEnv(file)
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}

// BaseDir returns the directory holding the main config file.
func BaseDir(mainPath string) string {
	return filepath.Dir(mainPath)
}

// LoadFile loads a go-zero style config file into T.
func LoadFile[T any](path string, useEnv bool) (*T, error) {
	var cfg T
	opts := []conf.Option{}
	if useEnv {
		opts = append(opts, conf.UseEnv())
	}
	if err := conf.Load(path, &cfg, opts...); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return &cfg, nil
}

// DecodeYAML reads a YAML document into T. The label prefixes errors so the
// caller's config file is identifiable in logs.
func DecodeYAML[T any](label string, r io.Reader) (*T, error) {
	if r == nil {
		return nil, fmt.Errorf("%s config: reader is nil", label)
	}
	var cfg T
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		if err == io.EOF {
			return &cfg, nil
		}
		return nil, fmt.Errorf("%s config: decode yaml: %w", label, err)
	}
	return &cfg, nil
}

// OpenAndDecode opens path and decodes it with DecodeYAML.
func OpenAndDecode[T any](label, path string) (*T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s config: open %s: %w", label, path, err)
	}
	defer f.Close()
	return DecodeYAML[T](label, f)
}

// Duration parses raw into a duration, returning def when raw is blank.
func Duration(label, field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s config: invalid %s %q: %w", label, field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s config: %s must be >= 0", label, field)
	}
	return d, nil
}

// Section is a config block that lives in its own file.
type Section[T any] struct {
	File  string `json:",optional"`
	Value *T     `json:"-"`
}

// Hydrate loads File (relative to base) with loader and stores the result.
// An empty File leaves the section unset.
func (s *Section[T]) Hydrate(base string, loader func(string) (*T, error)) error {
	if s.File == "" {
		return nil
	}
	p := ResolvePath(base, s.File)
	v, err := loader(p)
	if err != nil {
		return err
	}
	s.File, s.Value = p, v
	return nil
}

// ProjectRoot walks up from the working directory until it finds go.mod or
// .git. It falls back to the working directory.
func ProjectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return ".", fmt.Errorf("getwd: %w", err)
	}
	if dir, ok := findUp(wd); ok {
		return dir, nil
	}
	return wd, nil
}

// MustProjectPath joins the project root with rel and panics on failure.
func MustProjectPath(rel string) string {
	root, err := ProjectRoot()
	if err != nil {
		panic(err)
	}
	return filepath.Join(root, rel)
}

func findUp(dir string) (string, bool) {
	for i := 0; i < 8; i++ {
		if fileExists(filepath.Join(dir, "go.mod")) || fileExists(filepath.Join(dir, ".git")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}
