package pipeline

// Event names emitted through the progress callback. The callback exists
// for UI refresh only and must be side-effect-free from the pipeline's
// perspective.
const (
	EventOutlineGenerated        = "outline_generated"
	EventChaptersGenerated       = "chapters_generated"
	EventChapterOutlineGenerated = "chapter_outline_generated"
	EventParagraphsGenerated     = "paragraphs_generated"
	EventParagraphWritten        = "paragraph_written"
)

// Event describes one pipeline progress notification.
type Event struct {
	Name           string
	ChapterIndex   int // -1 when not chapter-scoped
	ParagraphIndex int // -1 when not paragraph-scoped
	Payload        any
}

// ProgressFunc observes pipeline progress.
type ProgressFunc func(Event)
