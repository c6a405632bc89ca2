package generation

// Task identifies one kind of generation request. Each task carries its own
// default token budget and output-shape description.
type Task string

const (
	TaskOutline        Task = "outline"
	TaskChapters       Task = "chapters"
	TaskChapterOutline Task = "chapter_outline"
	TaskParagraphs     Task = "paragraphs"
	TaskWriting        Task = "writing"
	TaskWorldBuilding  Task = "world_building"
)

var tokenBudgets = map[Task]int{
	TaskOutline:        8000,
	TaskChapters:       12000,
	TaskChapterOutline: 6000,
	TaskParagraphs:     8000,
	TaskWriting:        10000,
	TaskWorldBuilding:  4000,
}

// TokenBudget returns the default max-token budget for a task.
func TokenBudget(task Task) int {
	if budget, ok := tokenBudgets[task]; ok {
		return budget
	}
	return 8000
}

const systemPromptBase = `You are a professional novel-writing assistant. Answer the user's request directly and place the answer as JSON inside a ` + "```json```" + ` code block.

Requirements:
1. Output the JSON directly, with no extra explanation.
2. Make sure the JSON is syntactically valid and complete.
3. Keep the content practical and on-task.

`

var taskShapes = map[Task]string{
	TaskOutline: `JSON format:
{
    "title": "novel title",
    "summary": "story synopsis",
    "themes": ["theme 1", "theme 2"],
    "estimated_chapters": 12,
    "main_characters": [{"name": "character name", "desc": "short description"}],
    "world_setting": "overall world description",
    "story_flow": "how the story develops from opening through turns to its ending",
    "key_moments": ["key plot moment 1", "key plot moment 2"],
    "character_arcs": "how the main characters grow and change",
    "central_conflicts": ["core conflict 1", "core conflict 2"]
}`,

	TaskChapters: `JSON format:
{
    "chapters": [
        {
            "number": 1,
            "title": "chapter title",
            "summary": "chapter synopsis (within 50 words)",
            "key_events": ["event"],
            "characters_involved": ["name"],
            "estimated_words": 3000
        }
    ]
}`,

	TaskChapterOutline: `JSON format:
{
    "outline": {
        "story_spark": "what sets this chapter in motion",
        "rhythm_flow": "how the plot breathes, accelerates, slows",
        "turning_moments": "the moments that change everything",
        "emotional_core": "the feeling that carries the chapter",
        "story_elements": "how key characters, objects and places take part",
        "estimated_paragraphs": 8
    }
}`,

	TaskParagraphs: `JSON format:
{
    "paragraphs": [
        {
            "number": 1,
            "purpose": "complete description of the paragraph's purpose and direction",
            "content_type": "narration | dialogue | description",
            "key_points": ["point"],
            "estimated_words": 400,
            "mood": "mood tag"
        }
    ]
}`,

	TaskWriting: `JSON format:
{
    "content": "the full paragraph text",
    "word_count": 400
}`,

	TaskWorldBuilding: `Respond with a single JSON object exactly in the shape the task describes.`,
}

// SystemPrompt builds the fixed system prompt for a task.
func SystemPrompt(task Task) string {
	return systemPromptBase + taskShapes[task]
}
