package config

const (
	// TopicIngestFile carries a report file (PDF or JSON) to load into the library.
	TopicIngestFile = "ingest.task.file"

	// TopicIngestSource carries a freshness check, or a specific post URL, for a named source.
	TopicIngestSource = "ingest.task.source"

	// TopicDraft carries an outline to expand into a post.
	TopicDraft = "draft.task"
)

// Topics lists every topic the workers consume, in bootstrap order.
var Topics = []string{TopicIngestFile, TopicIngestSource, TopicDraft}
