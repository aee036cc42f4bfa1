// Package corpus loads lesson files into a Course.
//
// A corpus is a set of YAML files, one module per file. Files are read in
// name order; lessons and steps keep their authored order.
package corpus

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"lessonjudge/content"
	"lessonjudge/internal/lesson/model"
	appErr "lessonjudge/pkg/errors"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of one module file.
type File struct {
	Module  string         `yaml:"module"`
	Title   string         `yaml:"title"`
	Lessons []model.Lesson `yaml:"lessons"`
}

// Default loads the embedded curriculum.
func Default() (model.Course, error) {
	return Load(content.FS, "content")
}

// LoadDir loads every module file under dir.
func LoadDir(dir string) (model.Course, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return model.Course{}, appErr.Wrapf(err, appErr.CorpusLoadFailed, "corpus directory %q", dir)
	}
	if !info.IsDir() {
		return model.Course{}, appErr.Newf(appErr.CorpusLoadFailed, "corpus path %q is not a directory", dir)
	}
	return Load(os.DirFS(dir), filepath.Base(dir))
}

// Load reads all .yaml and .yml files at the root of fsys.
func Load(fsys fs.FS, id string) (model.Course, error) {
	names, err := moduleFiles(fsys)
	if err != nil {
		return model.Course{}, err
	}
	if len(names) == 0 {
		return model.Course{}, appErr.Newf(appErr.CorpusLoadFailed, "no lesson files found")
	}

	course := model.Course{ID: id, Title: id}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return model.Course{}, appErr.Wrapf(err, appErr.CorpusLoadFailed, "read %s", name)
		}
		file, err := decode(data)
		if err != nil {
			return model.Course{}, appErr.Wrapf(err, appErr.CorpusLoadFailed, "parse %s", name)
		}
		for _, lesson := range file.Lessons {
			if lesson.ModuleID == "" {
				lesson.ModuleID = file.Module
			}
			course.Lessons = append(course.Lessons, lesson)
		}
	}
	if err := Validate(&course); err != nil {
		return model.Course{}, err
	}
	return course, nil
}

func moduleFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CorpusLoadFailed, "list lesson files")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(path.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func decode(data []byte) (File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return File{}, nil
		}
		return File{}, err
	}
	return f, nil
}

// Validate checks identifiers and dialects, normalizing languages and step
// order in place.
func Validate(course *model.Course) error {
	lessonIDs := make(map[string]bool)
	stepIDs := make(map[string]string)
	for li := range course.Lessons {
		lesson := &course.Lessons[li]
		if strings.TrimSpace(lesson.ID) == "" {
			return appErr.Newf(appErr.CorpusLoadFailed, "lesson #%d has no id", li+1)
		}
		if lessonIDs[lesson.ID] {
			return appErr.Newf(appErr.CorpusLoadFailed, "duplicate lesson id %q", lesson.ID)
		}
		lessonIDs[lesson.ID] = true
		if len(lesson.Steps) == 0 {
			return appErr.Newf(appErr.CorpusLoadFailed, "lesson %q has no steps", lesson.ID)
		}
		sort.SliceStable(lesson.Steps, func(i, j int) bool {
			return lesson.Steps[i].Order < lesson.Steps[j].Order
		})
		for si := range lesson.Steps {
			if err := validateStep(lesson.ID, &lesson.Steps[si], stepIDs); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateStep(lessonID string, step *model.Step, seen map[string]string) error {
	if strings.TrimSpace(step.ID) == "" {
		return appErr.Newf(appErr.CorpusLoadFailed, "lesson %q has a step without id", lessonID)
	}
	if owner, ok := seen[step.ID]; ok {
		return appErr.Newf(appErr.CorpusLoadFailed, "step id %q used by lessons %q and %q", step.ID, owner, lessonID)
	}
	seen[step.ID] = lessonID

	lang, ok := model.ParseLanguage(string(step.Language))
	if !ok {
		return appErr.Newf(appErr.CorpusLoadFailed, "step %q: unsupported language %q", step.ID, step.Language)
	}
	step.Language = lang

	tests := make(map[string]bool, len(step.TestCases))
	for i, tc := range step.TestCases {
		if tc.ID == "" {
			return appErr.Newf(appErr.CorpusLoadFailed, "step %q: test case #%d has no id", step.ID, i+1)
		}
		if tests[tc.ID] {
			return appErr.Newf(appErr.TestCaseDuplicate, "step %q: duplicate test case %q", step.ID, tc.ID)
		}
		tests[tc.ID] = true
		if strings.TrimSpace(tc.TestFunction) == "" {
			return appErr.Newf(appErr.CorpusLoadFailed, "step %q: test case %q has no test function", step.ID, tc.ID)
		}
	}
	return nil
}

// Filter keeps the lessons whose ids are listed, in corpus order. An empty
// list keeps everything.
func Filter(course model.Course, lessonIDs []string) (model.Course, error) {
	if len(lessonIDs) == 0 {
		return course, nil
	}
	want := make(map[string]bool, len(lessonIDs))
	for _, id := range lessonIDs {
		want[id] = true
	}
	out := model.Course{ID: course.ID, Title: course.Title}
	for _, lesson := range course.Lessons {
		if want[lesson.ID] {
			out.Lessons = append(out.Lessons, lesson)
			delete(want, lesson.ID)
		}
	}
	for _, id := range lessonIDs {
		if want[id] {
			return model.Course{}, appErr.Newf(appErr.LessonNotFound, "lesson %q not found", id)
		}
	}
	return out, nil
}
