package models

// Manifest is the snapshot of every collection moved in one sync operation.
// Build it with NewManifest and treat it as read-only afterwards.
type Manifest struct {
	Articles      []ArticleRecord `json:"articles"`
	HealthRecords []HealthRecord  `json:"healthData"`
	Events        []EventRecord   `json:"events"`
	ExportedAt    int64           `json:"timestamp"`
}

// NewManifest copies the given collections into a new Manifest so later
// changes to the caller's slices do not leak into it.
func NewManifest(articles []ArticleRecord, health []HealthRecord, events []EventRecord, exportedAt int64) Manifest {
	return Manifest{
		Articles:      append([]ArticleRecord{}, articles...),
		HealthRecords: append([]HealthRecord{}, health...),
		Events:        append([]EventRecord{}, events...),
		ExportedAt:    exportedAt,
	}
}

// PhotoPaths returns the distinct non-empty photo references in event order.
func (m Manifest) PhotoPaths() []string {
	seen := make(map[string]struct{}, len(m.Events))
	var out []string
	for _, e := range m.Events {
		if !e.HasPhoto() {
			continue
		}
		if _, ok := seen[e.PhotoPath]; ok {
			continue
		}
		seen[e.PhotoPath] = struct{}{}
		out = append(out, e.PhotoPath)
	}
	return out
}

// ExportSummary describes a freshly produced archive.
type ExportSummary struct {
	ArchivePath       string `json:"archive_path"`
	SizeBytes         int64  `json:"size_bytes"`
	Checksum          string `json:"checksum"`
	ArticleCount      int    `json:"article_count"`
	ImageCount        int    `json:"image_count"`
	HealthRecordCount int    `json:"health_record_count"`
	EventCount        int    `json:"event_count"`
}

// ImportSummary describes a completed import.
type ImportSummary struct {
	TotalSizeBytes    int64  `json:"total_size_bytes"`
	Checksum          string `json:"checksum"`
	ArticleCount      int    `json:"article_count"`
	HealthRecordCount int    `json:"health_record_count"`
	EventCount        int    `json:"event_count"`
	ImageCount        int    `json:"image_count"`
}
