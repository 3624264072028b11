package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/quiz"
)

//go:embed schema.json
var schemaJSON string

// Loader loads course documents from a directory tree.
type Loader struct {
	rootDir string
	schema  *gojsonschema.Schema
	docs    map[string]Document
	mu      sync.RWMutex
}

// NewLoader creates a loader and loads every course document under rootDir.
// Files that fail to parse or validate are skipped with a warning.
func NewLoader(rootDir string) (*Loader, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile course schema: %w", err)
	}
	l := &Loader{
		rootDir: rootDir,
		schema:  schema,
		docs:    make(map[string]Document),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("catalog loaded", "courses", len(l.docs), "path", rootDir)
	return l, nil
}

// Course returns a loaded document by course id.
func (l *Loader) Course(id string) (Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.docs[id]
	return d, ok
}

// Courses returns all loaded documents ordered by course id.
func (l *Loader) Courses() []Document {
	l.mu.RLock()
	defer l.mu.RUnlock()
	docs := make([]Document, 0, len(l.docs))
	for _, d := range l.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CourseID < docs[j].CourseID })
	return docs
}

// Sync writes every loaded document into the stores. A document's completion
// gate is only written when the file sets one.
func (l *Loader) Sync(ctx context.Context, courses course.Store, quizzes quiz.Store) error {
	for _, d := range l.Courses() {
		if err := courses.PutTree(ctx, d.Tree()); err != nil {
			return fmt.Errorf("sync course %s: %w", d.CourseID, err)
		}
		if d.Completion != nil {
			if err := courses.SetCompletionFlag(ctx, d.CourseID, *d.Completion); err != nil {
				return fmt.Errorf("sync completion flag %s: %w", d.CourseID, err)
			}
		}
		for _, q := range d.Quizzes {
			q.CourseID = d.CourseID
			if err := quizzes.PutQuiz(ctx, q); err != nil {
				return fmt.Errorf("sync quiz %s: %w", q.ID, err)
			}
		}
		slog.Info("course synced",
			"course_id", d.CourseID,
			"sections", d.Tree().TotalSections(),
			"quizzes", len(d.Quizzes),
		)
	}
	return nil
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadDocument(path)
		}
		return nil
	})
}

func (l *Loader) loadDocument(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		slog.Warn("skipping invalid course YAML", "path", path, "error", err)
		return nil
	}
	if _, ok := raw["course_id"]; !ok {
		return nil // Not a course file
	}

	result, err := l.schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		slog.Warn("skipping unreadable course document", "path", path, "error", err)
		return nil
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		slog.Warn("skipping course document that fails schema",
			"path", path,
			"errors", strings.Join(problems, "; "),
		)
		return nil
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid course YAML", "path", path, "error", err)
		return nil
	}
	if err := doc.validate(); err != nil {
		slog.Warn("skipping invalid course document", "path", path, "error", err)
		return nil
	}

	l.mu.Lock()
	if _, dup := l.docs[doc.CourseID]; dup {
		slog.Warn("duplicate course document, keeping last", "course_id", doc.CourseID, "path", path)
	}
	l.docs[doc.CourseID] = doc
	l.mu.Unlock()

	return nil
}
