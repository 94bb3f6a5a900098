// Package dialog loads spoken dialog templates and intent vocabulary.
//
// A resource directory holds `<key>.dialog` files, one alternative phrase per
// line, and `<kind>.voc` files, one vocabulary entry per line. Blank lines and
// lines starting with '#' are ignored. Defaults for en-us are embedded.
package dialog

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"math/rand"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// DefaultLocale is the embedded locale.
const DefaultLocale = "en-us"

//go:embed locale
var embedded embed.FS

// Resources holds loaded dialogs and vocabulary.
type Resources struct {
	dialogs map[string][]string
	vocab   map[string][]string
	source  string
	choose  func(n int) int
}

// Load reads resources from dir, or the embedded defaults if dir is empty.
func Load(dir string) (*Resources, error) {
	if dir == "" {
		sub, err := fs.Sub(embedded, path.Join("locale", DefaultLocale))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return LoadFS(sub, "embedded:"+DefaultLocale)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, errors.Wrapf(err, "dialog dir %s", dir)
	}
	return LoadFS(os.DirFS(dir), dir)
}

// LoadFS reads all dialog and vocabulary files at the root of fsys.
func LoadFS(fsys fs.FS, source string) (*Resources, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", source)
	}
	r := &Resources{
		dialogs: make(map[string][]string),
		vocab:   make(map[string][]string),
		source:  source,
		choose:  rand.Intn,
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := path.Ext(name)
		if ext != ".dialog" && ext != ".voc" {
			continue
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", name)
		}
		lines := parseLines(data)
		if len(lines) == 0 {
			continue
		}
		key := strings.TrimSuffix(name, ext)
		if ext == ".dialog" {
			r.dialogs[key] = lines
		} else {
			r.vocab[key] = lines
		}
	}
	return r, nil
}

func parseLines(data []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// SetChooser replaces the random alternative picker. choose(n) must return a
// value in [0, n).
func (r *Resources) SetChooser(choose func(n int) int) {
	r.choose = choose
}

// Render returns one alternative for the dialog key. Unknown keys render as
// the key with dots and underscores turned into spaces.
func (r *Resources) Render(key string) string {
	alts := r.dialogs[key]
	if len(alts) == 0 {
		return strings.NewReplacer(".", " ", "_", " ").Replace(key)
	}
	if len(alts) == 1 {
		return alts[0]
	}
	return alts[r.choose(len(alts))]
}

// Vocabulary returns the entries of every vocabulary kind.
func (r *Resources) Vocabulary() map[string][]string {
	out := make(map[string][]string, len(r.vocab))
	for k, v := range r.vocab {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// VocabularyKinds returns the vocabulary kinds in sorted order.
func (r *Resources) VocabularyKinds() []string {
	kinds := make([]string, 0, len(r.vocab))
	for k := range r.vocab {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Source describes where the resources were loaded from.
func (r *Resources) Source() string {
	return r.source
}
