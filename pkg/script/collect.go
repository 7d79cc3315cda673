package script

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// DuplicateNameError reports two files that derive the same script name
// (case-insensitive).
type DuplicateNameError struct {
	Name   string
	First  string
	Second string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("the script name %s exists more than once (first instance %s, second instance %s)",
		e.Name, e.First, e.Second)
}

// DuplicateVersionError reports a version carried by more than one
// versioned script.
type DuplicateVersionError struct {
	Version string
	Second  string
}

func (e *DuplicateVersionError) Error() string {
	return fmt.Sprintf("the script version %s exists more than once (second instance %s)",
		e.Version, e.Second)
}

// Collect walks rootFolder recursively and classifies every candidate
// migration file. The returned map is keyed by the lowercased script
// name. Files that match no grammar are ignored; grammar violations,
// duplicate names, and duplicate versions abort the walk.
func Collect(rootFolder, versionRegex string) (map[string]*Script, error) {
	scripts := make(map[string]*Script)
	versions := make(map[string]bool)

	root, err := filepath.Abs(rootFolder)
	if err != nil {
		return nil, err
	}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		s, err := Classify(path, versionRegex)
		if err != nil {
			return err
		}
		if s == nil {
			return nil
		}

		key := strings.ToLower(s.Name)
		if prev, ok := scripts[key]; ok {
			return &DuplicateNameError{Name: s.Name, First: prev.FilePath, Second: s.FilePath}
		}
		scripts[key] = s

		if s.Kind == KindVersioned {
			if versions[s.Version] {
				return &DuplicateVersionError{Version: s.Version, Second: s.FilePath}
			}
			versions[s.Version] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scripts, nil
}
