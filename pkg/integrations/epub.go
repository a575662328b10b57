package integrations

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-shiori/go-epub"
	"github.com/kerbaras/audiobooks/pkg/data"
)

// ExportChapter is a downloaded chapter and the directory holding its audio.
type ExportChapter struct {
	Chapter *data.Chapter
	Dir     string
}

type EPubBuilder struct {
	outputDir string
}

func NewEPubBuilder(outputDir string) *EPubBuilder {
	return &EPubBuilder{outputDir: outputDir}
}

// CreateEPub compiles the downloaded chapters of an entry into one EPUB 3
// file with embedded audio. coverPath may be empty.
func (p *EPubBuilder) CreateEPub(entry *data.Entry, chapters []ExportChapter, coverPath string) (string, error) {
	if len(chapters) == 0 {
		return "", fmt.Errorf("no chapters to compile")
	}

	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	sorted := make([]ExportChapter, len(chapters))
	copy(sorted, chapters)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Chapter.Number < sorted[j].Chapter.Number
	})

	e, err := epub.NewEpub(entry.Title)
	if err != nil {
		return "", fmt.Errorf("failed to create EPub: %w", err)
	}
	if entry.Author != "" {
		e.SetAuthor(entry.Author)
	}
	if entry.Description != "" {
		e.SetDescription(entry.Description)
	}
	e.SetLang("en")

	if coverPath != "" {
		if err := p.addCover(e, entry, coverPath); err != nil {
			return "", err
		}
	}

	for i, ch := range sorted {
		if err := p.addChapterToEPub(e, i, ch); err != nil {
			return "", fmt.Errorf("failed to add chapter %s: %w", ch.Chapter.Name, err)
		}
	}

	outputPath := filepath.Join(p.outputDir, sanitizeFilename(entry.Title)+".epub")
	if err := e.Write(outputPath); err != nil {
		return "", fmt.Errorf("failed to write EPub: %w", err)
	}
	return outputPath, nil
}

func (p *EPubBuilder) addCover(e *epub.Epub, entry *data.Entry, coverPath string) error {
	internal, err := e.AddImage(coverPath, "cover"+filepath.Ext(coverPath))
	if err != nil {
		return fmt.Errorf("failed to add cover: %w", err)
	}
	body := fmt.Sprintf(`<div class="cover"><img src="%s" alt="%s" style="max-width:100%%;height:auto;"/></div>`,
		internal, html.EscapeString(entry.Title))
	if _, err := e.AddSection(body, "Cover", "cover.xhtml", ""); err != nil {
		return fmt.Errorf("failed to add cover section: %w", err)
	}
	return nil
}

// addChapterToEPub adds one section per chapter with an audio element per
// segment file.
func (p *EPubBuilder) addChapterToEPub(e *epub.Epub, index int, ch ExportChapter) error {
	files, err := os.ReadDir(ch.Dir)
	if err != nil {
		return fmt.Errorf("failed to read chapter directory: %w", err)
	}

	var audioFiles []string
	for _, file := range files {
		if !file.IsDir() && isAudioFile(file.Name()) {
			audioFiles = append(audioFiles, file.Name())
		}
	}
	if len(audioFiles) == 0 {
		return fmt.Errorf("no audio found in chapter directory")
	}
	sort.Strings(audioFiles)

	title := ch.Chapter.Name
	if ch.Chapter.Scanlator != "" {
		title = fmt.Sprintf("%s (read by %s)", title, ch.Chapter.Scanlator)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "<h1>%s</h1>\n", html.EscapeString(title))
	for j, name := range audioFiles {
		internal, err := e.AddAudio(filepath.Join(ch.Dir, name), fmt.Sprintf("ch%03d_%s", index+1, name))
		if err != nil {
			return fmt.Errorf("failed to add audio %s: %w", name, err)
		}
		fmt.Fprintf(&body, `<p><audio controls="controls" src="%s">Part %d</audio></p>%s`, internal, j+1, "\n")
	}

	if _, err := e.AddSection(body.String(), title, "", ""); err != nil {
		return fmt.Errorf("failed to add section: %w", err)
	}
	return nil
}

func isAudioFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3", ".m4a", ".m4b", ".aac", ".ogg", ".opus", ".flac", ".wav":
		return true
	default:
		return false
	}
}

// sanitizeFilename removes characters that are invalid in filenames
func sanitizeFilename(name string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := name
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)
	result = strings.Trim(result, ".")
	if result == "" {
		return "audiobook"
	}
	return result
}
