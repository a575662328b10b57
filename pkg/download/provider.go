package download

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kerbaras/audiobooks/pkg/data"
	"golang.org/x/text/unicode/norm"
)

// TempSuffix marks chapter directories that are still being written.
const TempSuffix = "_tmp"

const maxNameBytes = 240

// Provider maps entries and chapters to locations under the downloads root:
//
//	<root>/<source>/<entry title>/<narrator>_<chapter name>/001.mp3
//
// The root is fixed for the life of the process.
type Provider struct {
	root string

	remove func(string) error
}

func NewProvider(root string) *Provider {
	return &Provider{root: root, remove: os.RemoveAll}
}

func (p *Provider) Root() string {
	return p.root
}

func SourceDirName(sourceID string) string {
	return sanitizeName(sourceID)
}

func EntryDirName(title string) string {
	return sanitizeName(title)
}

func ChapterDirName(name, scanlator string) string {
	if scanlator != "" {
		return sanitizeName(scanlator + "_" + name)
	}
	return sanitizeName(name)
}

// IsTempName reports whether a directory entry is an unfinished download or
// otherwise not a chapter artifact.
func IsTempName(name string) bool {
	return strings.HasSuffix(name, TempSuffix) || strings.HasPrefix(name, ".")
}

func SegmentFileName(index int, format string) string {
	if format == "" {
		format = "bin"
	}
	return fmt.Sprintf("%03d.%s", index+1, format)
}

func (p *Provider) EntryDir(sourceID, title string) string {
	return filepath.Join(p.Root(), SourceDirName(sourceID), EntryDirName(title))
}

func (p *Provider) ChapterDir(sourceID, title string, chapter *data.Chapter) string {
	return filepath.Join(p.EntryDir(sourceID, title), ChapterDirName(chapter.Name, chapter.Scanlator))
}

func (p *Provider) TempChapterDir(sourceID, title string, chapter *data.Chapter) string {
	return p.ChapterDir(sourceID, title, chapter) + TempSuffix
}

// Commit moves a completed temp directory into its final place.
func (p *Provider) Commit(tmpDir, finalDir string) error {
	if err := p.remove(finalDir); err != nil {
		return fmt.Errorf("failed to replace %s: %w", finalDir, err)
	}
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return fmt.Errorf("failed to commit download: %w", err)
	}
	return nil
}

// Discard removes a temp directory, ignoring a missing one.
func (p *Provider) Discard(tmpDir string) error {
	if err := p.remove(tmpDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DeleteResult is the outcome of removing one chapter's artifacts. Skipped
// is set when the chapter had nothing on disk.
type DeleteResult struct {
	Chapter *data.Chapter
	Skipped bool
	Err     error
}

// DeleteChapters removes the committed and partial artifacts of each chapter.
// A failure for one chapter does not stop the others. The entry directory is
// removed when it ends up empty.
func (p *Provider) DeleteChapters(sourceID string, entry *data.Entry, chapters []*data.Chapter) []DeleteResult {
	results := make([]DeleteResult, 0, len(chapters))
	for _, ch := range chapters {
		final := p.ChapterDir(sourceID, entry.Title, ch)
		if !exists(final) && !exists(final+TempSuffix) {
			results = append(results, DeleteResult{Chapter: ch, Skipped: true})
			continue
		}
		err := p.remove(final)
		if err == nil {
			err = p.remove(final + TempSuffix)
		}
		if err != nil {
			err = fmt.Errorf("failed to delete %s: %w", final, err)
		}
		results = append(results, DeleteResult{Chapter: ch, Err: err})
	}

	entryDir := p.EntryDir(sourceID, entry.Title)
	if items, err := os.ReadDir(entryDir); err == nil && len(items) == 0 {
		os.Remove(entryDir)
	}
	return results
}

// sanitizeName makes a title safe as a single path element. Names are NFC
// normalised so the same title from different sources maps to one directory.
func sanitizeName(name string) string {
	name = norm.NFC.String(name)
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", "\x00"}
	for _, char := range invalid {
		name = strings.ReplaceAll(name, char, "_")
	}
	name = strings.TrimSpace(name)
	name = strings.Trim(name, ".")
	if name == "" {
		return "_"
	}
	if len(name) > maxNameBytes {
		cut := maxNameBytes
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	return name
}

// exists reports false only when path is known to be missing.
func exists(path string) bool {
	_, err := os.Lstat(path)
	return !errors.Is(err, os.ErrNotExist)
}
