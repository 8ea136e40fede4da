package types

// Question is one extracted quiz question as returned to the client.
type Question struct {
	ID                 string   `json:"id,omitempty"`
	Question           string   `json:"question"`
	ContainsMath       bool     `json:"contains_math"`
	MathExpressions    []string `json:"math_expressions,omitempty"`
	Options            Options  `json:"options"`
	Correct            *string  `json:"correct"`
	Explanation        string   `json:"explanation,omitempty"`
	OptionExplanations Options  `json:"option_explanations,omitempty"`
	ThingsToRemember   []string `json:"things_to_remember,omitempty"`
	HasTable           bool     `json:"has_table,omitempty"`
	TableHTML          string   `json:"table_html,omitempty"`
	Section            string   `json:"section,omitempty"`
	Page               int      `json:"page"` // 0-indexed page where the question starts
	ValidationIssues   []string `json:"validation_issues,omitempty"`
	DuplicateOf        string   `json:"duplicate_of,omitempty"`
}

// CorrectLabel returns the correct answer or "" when absent.
func (q Question) CorrectLabel() string {
	if q.Correct == nil {
		return ""
	}
	return *q.Correct
}

// Section groups questions under a heading. Indexes point into the
// ProcessResponse.Questions slice.
type Section struct {
	Name            string   `json:"name"`
	QuestionIDs     []string `json:"question_ids"`
	QuestionIndexes []int    `json:"question_indexes"`
	QuestionCount   int      `json:"question_count"`
}

type ProcessingStats struct {
	ElapsedMS      int64    `json:"elapsed_ms"`
	TotalPages     int      `json:"total_pages"`
	ProcessedPages int      `json:"processed_pages"`
	TextLayerPages int      `json:"text_layer_pages"`
	OCRPages       int      `json:"ocr_pages"`
	EmptyPages     int      `json:"empty_pages"`
	QuestionsFound int      `json:"questions_found"`
	TablesFound    int      `json:"tables_found"`
	MathFound      int      `json:"math_found"`
	Embedded       int      `json:"embedded"`
	OCRUsed        bool     `json:"ocr_used"`
	Warnings       []string `json:"warnings,omitempty"`
}

// ProcessResponse is the canonical /process payload. Sections is omitted when
// the document has no section headings.
type ProcessResponse struct {
	RequestID      string          `json:"request_id"`
	Questions      []Question      `json:"questions"`
	Sections       []Section       `json:"sections,omitempty"`
	TotalQuestions int             `json:"total_questions"`
	TotalPages     int             `json:"total_pages"`
	Stats          ProcessingStats `json:"stats"`
	Partial        bool            `json:"partial"`
	Code           string          `json:"code,omitempty"`
	Message        string          `json:"message,omitempty"`
}

type PDFMetadata struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Subject  string `json:"subject"`
	Creator  string `json:"creator"`
	Producer string `json:"producer"`
}

type InfoResponse struct {
	TotalPages         int         `json:"total_pages"`
	FileSizeMB         float64     `json:"file_size_mb"`
	Metadata           PDFMetadata `json:"metadata"`
	HasTOC             bool        `json:"has_toc"`
	EstimatedQuestions int         `json:"estimated_questions"`
}

// ── Async jobs ───────────────────────────────────────────────────────────────

const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobTimeout    = "timeout"
	JobError      = "error"
)

type JobStatus struct {
	RequestID string           `json:"request_id"`
	Status    string           `json:"status"`
	Progress  float64          `json:"progress"`
	Message   string           `json:"message"`
	Timestamp float64          `json:"timestamp"` // unix seconds
	Result    *ProcessResponse `json:"result,omitempty"`
}

type AsyncAccepted struct {
	RequestID      string `json:"request_id"`
	Status         string `json:"status"`
	Message        string `json:"message"`
	StatusEndpoint string `json:"status_endpoint"`
}

// ── Search ───────────────────────────────────────────────────────────────────

type SearchHit struct {
	QuestionID string  `json:"question_id"`
	FileHash   string  `json:"file_hash"`
	Question   string  `json:"question"`
	Options    Options `json:"options"`
	Correct    string  `json:"correct,omitempty"`
	Score      float64 `json:"score"`
}

type SearchResponse struct {
	Query   string      `json:"query"`
	Count   int         `json:"count"`
	Results []SearchHit `json:"results"`
}
