package mcpserver

// ArchiveFormatContract describes the backup archive exchanged between two
// devices, for LLM consumers that inspect or build archives.
const ArchiveFormatContract = `# eatsync Backup Archive Format

A backup is a single zip file served at ` + "`GET http://<host>:<port>/backup.zip`" + `
(port 8080 by default, falling back up to 8090 when taken).

## Layout

` + "```" + `text
data.json          # REQUIRED – the manifest
images/<file>      # OPTIONAL – one entry per photo referenced by an event
` + "```" + `

## data.json

` + "```" + `json
{
  "articles":   [{"id": 1, "title": "", "content": "", "url": "", "timestamp": 0}],
  "healthData": [{"id": 1, "timestamp": 0, "type": "Weight", "value1": 140.0, "value2": null}],
  "events":     [{"id": 1, "type": "Meal", "timestamp": 0, "imagePath": "/abs/path/meal.jpg"}],
  "timestamp":  1700000000000
}
` + "```" + `

## Rules

1. Timestamps are milliseconds since the Unix epoch.
2. ` + "`healthData[].type`" + ` is ` + "`Weight`" + ` or ` + "`BloodPressure`" + `. Weight
   ` + "`value1`" + ` is stored doubled in the archive and halved on import.
   ` + "`value2`" + ` is the diastolic reading, null for Weight.
3. ` + "`events[].imagePath`" + ` is matched to ` + "`images/<basename>`" + ` on import. A
   missing image clears the reference instead of failing the import.
4. Integer fields are read leniently: null, quoted, or malformed values
   become 0. A manifest that is not a JSON object fails as corrupt_archive.
5. Importing replaces ALL local articles, health records and events. There
   is no merge and no rollback.

## Error codes

| Code | Meaning |
|------|---------|
| port_unavailable | no free port in the serving range |
| connection_failed | peer unreachable or timed out |
| remote_error | peer answered with a non-success status |
| corrupt_archive | not a zip, unsafe entry, or unreadable manifest |
| no_manifest_found | zip without data.json |
| busy | another export or import is running |
| internal | local store or filesystem failure |
`
