package memora

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// categoryMeta mirrors the TOML metadata file stored beside each prompt
// template (<prompts>/<name>/config).
type categoryMeta struct {
	Name           string   `toml:"name"`
	Filename       string   `toml:"filename"`
	Description    string   `toml:"description"`
	Priority       int      `toml:"priority"`
	Dependencies   []string `toml:"dependencies"`
	UpdateMode     string   `toml:"update_mode"`
	PromptTemplate string   `toml:"prompt_template"`
	IsRoot         bool     `toml:"is_root"`
}

// parseCategoryMeta decodes one metadata file. The directory name is the
// category name; a name key in the file must agree with it. The prompt
// template defaults to the category name.
func parseCategoryMeta(name string, data []byte) (CategoryConfig, error) {
	var m categoryMeta
	if err := toml.Unmarshal(data, &m); err != nil {
		return CategoryConfig{}, &ErrCategoryConfig{Category: name, Reason: "bad metadata: " + err.Error()}
	}
	if m.Name != "" && m.Name != name {
		return CategoryConfig{}, &ErrCategoryConfig{Category: name, Reason: "metadata names category " + m.Name}
	}

	var mode UpdateMode
	switch m.UpdateMode {
	case "", "replace":
		mode = UpdateReplace
	case "append":
		mode = UpdateAppend
	default:
		return CategoryConfig{}, &ErrCategoryConfig{Category: name, Reason: "unknown update_mode " + m.UpdateMode}
	}

	tmpl := m.PromptTemplate
	if tmpl == "" {
		tmpl = name
	}
	return CategoryConfig{
		Name:           name,
		Filename:       m.Filename,
		Description:    m.Description,
		Dependencies:   m.Dependencies,
		Priority:       m.Priority,
		PromptTemplate: tmpl,
		UpdateMode:     mode,
		IsRoot:         m.IsRoot,
	}, nil
}

// LoadCategories returns the default category set with any metadata
// overrides found under dir. Each subdirectory holding a config file
// either replaces the default of the same name or, for new names, is
// appended after the defaults in lexical order. A missing dir yields the
// defaults unchanged; template-only subdirectories are skipped.
func LoadCategories(dir string) ([]CategoryConfig, error) {
	cats := DefaultCategories()
	if dir == "" {
		return cats, nil
	}

	index := make(map[string]int, len(cats))
	for i, c := range cats {
		index[c.Name] = i
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return cats, nil
		}
		return nil, &ErrStorageIO{Op: "load categories", Err: err}
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name(), "config"))
		if err != nil {
			continue
		}
		c, err := parseCategoryMeta(e.Name(), data)
		if err != nil {
			return nil, err
		}
		if i, ok := index[c.Name]; ok {
			cats[i] = c
		} else {
			index[c.Name] = len(cats)
			cats = append(cats, c)
		}
	}
	return cats, nil
}
