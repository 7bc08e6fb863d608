package model

// CatalogQuestion is a question as served by the external Question Catalog.
// The catalog owns the content; attempts copy what they need at assembly time
// and only keep the id as a reference.
type CatalogQuestion struct {
	ID            int64    `json:"id"`
	CategoryID    int64    `json:"category_id"`
	CategoryName  string   `json:"category_name"`
	QuestionText  string   `json:"question_text"`
	ImageURL      string   `json:"image_url,omitempty"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// ProgressUpdate is the payload sent to the Student Progress service after an
// attempt is finalized. Delivery is best effort.
type ProgressUpdate struct {
	StudentID  int64   `json:"student_id"`
	CourseID   *int64  `json:"course_id,omitempty"`
	ModuleName string  `json:"module_name,omitempty"`
	Score      int     `json:"score"`
	Passed     *bool   `json:"passed,omitempty"`
	Notes      string  `json:"notes,omitempty"`
	Percentage float64 `json:"percentage"`
}
