package expand

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"mvdan.cc/sh/v3/pattern"
)

const globChars = "*?["

// patternOf builds a glob pattern from a field. Quoted text is escaped so it
// only matches itself. It reports whether any unquoted wildcard remains.
func patternOf(f []fragment) (string, bool) {
	var sb strings.Builder
	meta := false
	for _, frag := range f {
		if !frag.quoted {
			sb.WriteString(frag.text)
			if strings.ContainsAny(frag.text, globChars) {
				meta = true
			}
			continue
		}
		for _, r := range frag.text {
			if strings.ContainsRune(`*?[]\`, r) {
				sb.WriteByte('\\')
			}
			sb.WriteRune(r)
		}
	}
	return sb.String(), meta
}

func match(pat, name string) bool {
	expr, err := pattern.Regexp(pat, pattern.EntireString)
	if err != nil {
		return false
	}
	rx, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	return rx.MatchString(name)
}

func hasMeta(pat string) bool {
	for i := 0; i < len(pat); i++ {
		switch pat[i] {
		case '\\':
			i++
		case '*', '?', '[':
			return true
		}
	}
	return false
}

func unescapePattern(pat string) string {
	if !strings.Contains(pat, `\`) {
		return pat
	}
	var sb strings.Builder
	for i := 0; i < len(pat); i++ {
		if pat[i] == '\\' && i+1 < len(pat) {
			i++
		}
		sb.WriteByte(pat[i])
	}
	return sb.String()
}

func (e *expander) glob(f []fragment) ([]string, error) {
	text := joinFragments(f)
	if e.cfg.NoGlob {
		return []string{text}, nil
	}
	pat, meta := patternOf(f)
	if !meta || !hasMeta(pat) {
		return []string{text}, nil
	}

	matches := e.globPath(pat)
	if len(matches) > 0 {
		return matches, nil
	}
	switch e.cfg.Glob {
	case GlobEmpty:
		return nil, nil
	case GlobError:
		return nil, &Error{Kind: NoMatch, Name: text}
	}
	return []string{text}, nil
}

// globPath matches pat one path component at a time. Results keep the
// pattern's form: absolute patterns give absolute paths, relative ones are
// relative to cfg.Dir.
func (e *expander) globPath(pat string) []string {
	fsys := e.cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	comps := strings.Split(pat, "/")
	matches := []string{""}
	if comps[0] == "" {
		matches = []string{"/"}
		comps = comps[1:]
	}

	for i, comp := range comps {
		last := i == len(comps)-1
		if comp == "" {
			if last {
				// A trailing slash keeps only directories.
				var dirs []string
				for _, m := range matches {
					if fi, err := fsys.Stat(e.fsPath(m)); err == nil && fi.IsDir() {
						dirs = append(dirs, m+"/")
					}
				}
				matches = dirs
			}
			continue
		}

		var next []string
		if !hasMeta(comp) {
			lit := unescapePattern(comp)
			for _, m := range matches {
				p := joinMatch(m, lit)
				if _, err := fsys.Stat(e.fsPath(p)); err == nil {
					next = append(next, p)
				}
			}
			matches = next
			continue
		}

		expr, err := pattern.Regexp(comp, pattern.Filenames|pattern.EntireString)
		if err != nil {
			return nil
		}
		rx, err := regexp.Compile(expr)
		if err != nil {
			return nil
		}
		for _, m := range matches {
			entries, err := afero.ReadDir(fsys, e.fsPath(m))
			if err != nil {
				continue
			}
			for _, ent := range entries {
				name := ent.Name()
				if strings.HasPrefix(name, ".") && !strings.HasPrefix(comp, ".") {
					continue
				}
				if !last && !ent.IsDir() {
					continue
				}
				if rx.MatchString(name) {
					next = append(next, joinMatch(m, name))
				}
			}
		}
		matches = next
		if len(matches) == 0 {
			return nil
		}
	}

	sort.Strings(matches)
	return matches
}

func joinMatch(dir, name string) string {
	switch {
	case dir == "":
		return name
	case strings.HasSuffix(dir, "/"):
		return dir + name
	}
	return dir + "/" + name
}

func (e *expander) fsPath(p string) string {
	if p == "" {
		p = "."
	}
	if filepath.IsAbs(p) || e.cfg.Dir == "" {
		return p
	}
	return filepath.Join(e.cfg.Dir, p)
}
