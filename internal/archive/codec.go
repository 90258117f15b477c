// Package archive converts sync manifests to and from data.json and packages
// them with photo files into a single zip container.
package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/eatsync/internal/apperr"
	"github.com/starford/eatsync/internal/models"
)

// Container layout.
const (
	ManifestName = "data.json"
	ImagesDir    = "images"
)

type wireArticle struct {
	ID        Int    `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	URL       string `json:"url"`
	Timestamp Int    `json:"timestamp"`
}

type wireHealth struct {
	ID        Int       `json:"id"`
	Timestamp Int       `json:"timestamp"`
	Type      string    `json:"type"`
	Value1    Float     `json:"value1"`
	Value2    NullFloat `json:"value2"`
}

type wireEvent struct {
	ID        Int     `json:"id"`
	Type      string  `json:"type"`
	Timestamp Int     `json:"timestamp"`
	ImagePath *string `json:"imagePath"`
}

type wireManifest struct {
	Articles   []wireArticle `json:"articles"`
	HealthData []wireHealth  `json:"healthData"`
	Events     []wireEvent   `json:"events"`
	Timestamp  Int           `json:"timestamp"`
}

// Encode serializes m as data.json. Health records are written as given; the
// caller applies the Weight unit conversion.
func Encode(m models.Manifest) ([]byte, error) {
	w := wireManifest{
		Articles:   make([]wireArticle, len(m.Articles)),
		HealthData: make([]wireHealth, len(m.HealthRecords)),
		Events:     make([]wireEvent, len(m.Events)),
		Timestamp:  Int(m.ExportedAt),
	}
	for i, a := range m.Articles {
		w.Articles[i] = wireArticle{
			ID:        Int(a.ID),
			Title:     a.Title,
			Content:   a.Content,
			URL:       a.URL,
			Timestamp: Int(a.Timestamp),
		}
	}
	for i, h := range m.HealthRecords {
		wh := wireHealth{
			ID:        Int(h.ID),
			Timestamp: Int(h.Timestamp),
			Type:      string(h.Kind),
			Value1:    Float(h.Value1),
		}
		if h.Value2 != nil {
			wh.Value2 = NullFloat{Value: *h.Value2, Valid: true}
		}
		w.HealthData[i] = wh
	}
	for i, e := range m.Events {
		we := wireEvent{ID: Int(e.ID), Type: e.Category, Timestamp: Int(e.Timestamp)}
		if e.PhotoPath != "" {
			p := e.PhotoPath
			we.ImagePath = &p
		}
		w.Events[i] = we
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("archive: encode manifest: %w", err)
	}
	return data, nil
}

// wireEnvelope defers each collection so its shape can be checked before
// the records are read.
type wireEnvelope struct {
	Articles   json.RawMessage `json:"articles"`
	HealthData json.RawMessage `json:"healthData"`
	Events     json.RawMessage `json:"events"`
	Timestamp  Int             `json:"timestamp"`
}

// Decode parses data.json. It fails with a CorruptArchive error when the
// payload is not a JSON object, a collection is not an array, or a record is
// not an object. Type defects inside individual record fields are tolerated
// and the affected fields keep their zero value.
func Decode(data []byte) (models.Manifest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return models.Manifest{}, apperr.New(apperr.KindCorruptArchive, "manifest is not a JSON object", nil)
	}

	var env wireEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return models.Manifest{}, apperr.New(apperr.KindCorruptArchive, "manifest is not valid JSON", err)
	}

	var (
		w   wireManifest
		err error
	)
	w.Timestamp = env.Timestamp
	if w.Articles, err = decodeCollection[wireArticle]("articles", env.Articles); err != nil {
		return models.Manifest{}, err
	}
	if w.HealthData, err = decodeCollection[wireHealth]("healthData", env.HealthData); err != nil {
		return models.Manifest{}, err
	}
	if w.Events, err = decodeCollection[wireEvent]("events", env.Events); err != nil {
		return models.Manifest{}, err
	}

	m := models.Manifest{
		Articles:      make([]models.ArticleRecord, 0, len(w.Articles)),
		HealthRecords: make([]models.HealthRecord, 0, len(w.HealthData)),
		Events:        make([]models.EventRecord, 0, len(w.Events)),
		ExportedAt:    int64(w.Timestamp),
	}
	for _, a := range w.Articles {
		m.Articles = append(m.Articles, models.ArticleRecord{
			ID:        int64(a.ID),
			Title:     a.Title,
			Content:   a.Content,
			URL:       a.URL,
			Timestamp: int64(a.Timestamp),
		})
	}
	for _, h := range w.HealthData {
		r := models.HealthRecord{
			ID:        int64(h.ID),
			Timestamp: int64(h.Timestamp),
			Kind:      models.HealthKind(h.Type),
			Value1:    float64(h.Value1),
		}
		if h.Value2.Valid {
			v := h.Value2.Value
			r.Value2 = &v
		}
		m.HealthRecords = append(m.HealthRecords, r)
	}
	for _, e := range w.Events {
		r := models.EventRecord{ID: int64(e.ID), Category: e.Type, Timestamp: int64(e.Timestamp)}
		if e.ImagePath != nil {
			r.PhotoPath = *e.ImagePath
		}
		m.Events = append(m.Events, r)
	}
	return m, nil
}

// decodeCollection reads a JSON array of record objects. A missing or null
// collection is empty.
func decodeCollection[T any](name string, raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '[' {
		return nil, apperr.New(apperr.KindCorruptArchive, name+" is not an array", nil)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, apperr.New(apperr.KindCorruptArchive, name+" is not valid JSON", err)
	}

	out := make([]T, 0, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return nil, apperr.New(apperr.KindCorruptArchive, fmt.Sprintf("%s[%d] is not an object", name, i), nil)
		}
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &typeErr) {
				return nil, apperr.New(apperr.KindCorruptArchive, fmt.Sprintf("%s[%d] is not valid JSON", name, i), err)
			}
			slog.Warn("archive: tolerated field defect in manifest",
				slog.String("record", fmt.Sprintf("%s[%d]", name, i)),
				slog.String("field", typeErr.Field),
				slog.String("error", err.Error()))
		}
		out = append(out, v)
	}
	return out, nil
}
