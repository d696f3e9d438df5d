package noteservice

import (
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/noteweave/internal/apperr"
	"github.com/starford/noteweave/internal/models"
	"github.com/starford/noteweave/internal/store"
)

const (
	maxTitleLen = 300
	maxTagLen   = 64
	maxTags     = 32
)

// CreateNoteInput is the author-supplied part of a new note.
type CreateNoteInput struct {
	Type        string     `json:"type"`
	Content     string     `json:"content"`
	Title       string     `json:"title"`
	Tags        []string   `json:"tags"`
	PublishedAt *time.Time `json:"publishedAt"`
	// LinkTo lists IDs of existing notes this note links to.
	LinkTo []string `json:"linkTo"`
}

func (in *CreateNoteInput) normalize() {
	in.Type = strings.ToUpper(strings.TrimSpace(in.Type))
	in.Content = strings.TrimSpace(in.Content)
	in.Title = strings.TrimSpace(in.Title)
	in.Tags = mergeTags(in.Tags, nil)
}

func (in *CreateNoteInput) validate(maxContent int) error {
	err := validation.ValidateStruct(in,
		validation.Field(&in.Type, validation.Required, validation.By(knownType)),
		validation.Field(&in.Content, validation.Required, validation.RuneLength(1, maxContent), validation.By(contentFor(in.Type))),
		validation.Field(&in.Title, validation.RuneLength(0, maxTitleLen)),
		validation.Field(&in.Tags, validation.Length(0, maxTags), validation.Each(validation.RuneLength(1, maxTagLen))),
	)
	if err != nil {
		return apperr.Validationf("%v", err)
	}
	return nil
}

func knownType(v any) error {
	if _, ok := models.ParseNoteType(v.(string)); !ok {
		return validation.NewError("validation_note_type", "must be one of LINK, TEXT, MEDIA")
	}
	return nil
}

// contentFor checks the payload shape for a note type: LINK content is an
// http(s) URL and MEDIA content is a reference, never inline data.
func contentFor(noteType string) validation.RuleFunc {
	return func(v any) error {
		content := v.(string)
		switch models.NoteType(noteType) {
		case models.NoteTypeLink:
			u, err := url.Parse(content)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return validation.NewError("validation_link_url", "must be an absolute http(s) URL")
			}
		case models.NoteTypeMedia:
			if strings.HasPrefix(content, "data:") {
				return validation.NewError("validation_media_ref", "must reference the media file, not embed it")
			}
		}
		return nil
	}
}

// UpdateNoteInput carries the mutable note fields. Nil means unchanged.
type UpdateNoteInput struct {
	Title *string   `json:"title"`
	Tags  *[]string `json:"tags"`
}

func (in *UpdateNoteInput) validate() error {
	if in.Title == nil && in.Tags == nil {
		return apperr.Validationf("nothing to update: title or tags required")
	}
	if in.Title != nil && len([]rune(*in.Title)) > maxTitleLen {
		return apperr.Validationf("title: the length must be no more than %d", maxTitleLen)
	}
	if in.Tags != nil {
		err := validation.Validate(*in.Tags, validation.Length(0, maxTags), validation.Each(validation.RuneLength(0, maxTagLen)))
		if err != nil {
			return apperr.Validationf("tags: %v", err)
		}
	}
	return nil
}

// ListParams are the paging and filter options of ListNotes.
type ListParams struct {
	Limit  int
	Offset int
	Tag    string
	Type   string
	Status string
	Sort   string
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (p ListParams) filter() (store.NoteFilter, error) {
	f := store.NoteFilter{
		Limit:  p.Limit,
		Offset: max(p.Offset, 0),
		Tag:    strings.TrimSpace(p.Tag),
		Sort:   p.Sort,
	}
	if f.Limit <= 0 || f.Limit > maxPageSize {
		f.Limit = defaultPageSize
	}
	if p.Type != "" {
		t, ok := models.ParseNoteType(p.Type)
		if !ok {
			return f, apperr.Validationf("unknown note type %q", p.Type)
		}
		f.Type = t
	}
	if p.Status != "" {
		st := models.ProcessStatus(strings.ToUpper(strings.TrimSpace(p.Status)))
		switch st {
		case models.StatusPending, models.StatusProcessing, models.StatusDone, models.StatusFailed:
			f.Statuses = []models.ProcessStatus{st}
		default:
			return f, apperr.Validationf("unknown status %q", p.Status)
		}
	}
	switch p.Sort {
	case "", "created", "updated", "title":
	default:
		return f, apperr.Validationf("unknown sort %q", p.Sort)
	}
	return f, nil
}

// mergeTags trims, drops empties and de-duplicates, keeping first-seen order.
func mergeTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#"))
			if t == "" {
				continue
			}
			key := strings.ToLower(t)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
