package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/kerbaras/audiobooks/pkg/data"
	"github.com/kerbaras/audiobooks/pkg/utils"
)

// QualifiedID prefixes a catalog id with its source so ids from different
// catalogs never collide in the library.
func QualifiedID(sourceID, id string) string {
	return sourceID + ":" + id
}

type catalogEntry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Cover       string `json:"cover"`
	Status      string `json:"status"`
}

func (e *catalogEntry) toEntry(source string) *data.Entry {
	return &data.Entry{
		ID:          QualifiedID(source, e.ID),
		Title:       e.Title,
		Author:      e.Author,
		Description: e.Description,
		CoverURL:    e.Cover,
		Source:      source,
		Status:      e.Status,
	}
}

type catalogChapter struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Narrator  string  `json:"narrator"`
	Number    float64 `json:"number"`
	Published string  `json:"published"`
	URL       string  `json:"url"`
}

func (c *catalogChapter) toChapter(source, entryID string, order int) *data.Chapter {
	chapter := &data.Chapter{
		ID:          QualifiedID(source, c.ID),
		EntryID:     entryID,
		Name:        c.Name,
		Scanlator:   c.Narrator,
		Number:      c.Number,
		SourceOrder: order,
		URL:         c.URL,
	}
	if t, err := time.Parse(time.RFC3339, c.Published); err == nil {
		chapter.UploadDate = t
	}
	return chapter
}

// Catalog is a source backed by a JSON audiobook catalog API:
//
//	GET /entries?title=...        -> {"data": [entry]}
//	GET /entries/{id}             -> {"data": entry}
//	GET /entries/{id}/chapters    -> {"data": [chapter]}
//	GET /chapters/{id}/media      -> {"format": "mp3", "segments": [{"url", "size"}]}
type Catalog struct {
	id   string
	name string
	api  *utils.API
}

func NewCatalog(id, name, baseURL string) *Catalog {
	return NewCatalogWithClient(id, name, baseURL, http.DefaultClient)
}

func NewCatalogWithClient(id, name, baseURL string, client *http.Client) *Catalog {
	if name == "" {
		name = id
	}
	return &Catalog{id: id, name: name, api: utils.NewAPIWithClient(baseURL, client)}
}

func (c *Catalog) ID() string   { return c.id }
func (c *Catalog) Name() string { return c.name }

// remoteID strips the source prefix added by QualifiedID. Unqualified ids are
// returned unchanged.
func (c *Catalog) remoteID(id string) string {
	return strings.TrimPrefix(id, c.id+":")
}

func (c *Catalog) Search(ctx context.Context, query string) ([]data.Entry, error) {
	var result struct {
		Data []catalogEntry `json:"data"`
	}
	if err := c.api.Get(ctx, "/entries", url.Values{"title": {query}}, &result); err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", c.id, err)
	}
	out := make([]data.Entry, len(result.Data))
	for i, entry := range result.Data {
		out[i] = *entry.toEntry(c.id)
	}
	return out, nil
}

func (c *Catalog) GetEntry(ctx context.Context, id string) (*data.Entry, error) {
	var result struct {
		Data catalogEntry `json:"data"`
	}
	if err := c.api.Get(ctx, "/entries/"+url.PathEscape(c.remoteID(id)), nil, &result); err != nil {
		return nil, fmt.Errorf("failed to get entry %s: %w", id, err)
	}
	return result.Data.toEntry(c.id), nil
}

func (c *Catalog) GetChapters(ctx context.Context, entry *data.Entry) ([]*data.Chapter, error) {
	var result struct {
		Data []catalogChapter `json:"data"`
	}
	if err := c.api.Get(ctx, "/entries/"+url.PathEscape(c.remoteID(entry.ID))+"/chapters", nil, &result); err != nil {
		return nil, fmt.Errorf("failed to get chapters of %s: %w", entry.ID, err)
	}
	out := make([]*data.Chapter, len(result.Data))
	for i, chapter := range result.Data {
		out[i] = chapter.toChapter(c.id, entry.ID, i)
	}
	return out, nil
}

func (c *Catalog) GetMedia(ctx context.Context, _ *data.Entry, chapter *data.Chapter) (*Media, error) {
	var result struct {
		Format   string `json:"format"`
		Segments []struct {
			URL  string `json:"url"`
			Size int64  `json:"size"`
		} `json:"segments"`
	}
	if err := c.api.Get(ctx, "/chapters/"+url.PathEscape(c.remoteID(chapter.ID))+"/media", nil, &result); err != nil {
		return nil, fmt.Errorf("failed to get media of %s: %w", chapter.ID, err)
	}

	media := &Media{Format: strings.TrimPrefix(result.Format, ".")}
	for _, s := range result.Segments {
		media.Segments = append(media.Segments, Segment{URL: s.URL, Size: s.Size})
	}
	if media.Format == "" && len(media.Segments) > 0 {
		media.Format = strings.TrimPrefix(path.Ext(media.Segments[0].URL), ".")
	}
	return media, nil
}

func (c *Catalog) OpenSegment(ctx context.Context, segment Segment) (io.ReadCloser, int64, error) {
	return c.api.Open(ctx, segment.URL)
}
