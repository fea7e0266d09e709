// ABOUTME: Benchmark scenario definitions for question answering over PDFs
// ABOUTME: Scenarios load from YAML or come built in with inline passages

package ragas

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/harper/pdfrag/internal/models"
	"gopkg.in/yaml.v3"
)

// TestScenario is one question asked against a freshly built index
type TestScenario struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`

	// Documents are PDF paths, relative to the scenario file
	Documents []string `yaml:"documents" json:"documents,omitempty"`
	// Passages are indexed directly, skipping extraction
	Passages []Passage `yaml:"passages" json:"passages,omitempty"`

	Question    string      `yaml:"question" json:"question"`
	K           int         `yaml:"k" json:"k,omitempty"`
	GroundTruth GroundTruth `yaml:"ground_truth" json:"ground_truth"`
}

// Passage is pre-extracted content for scenarios that need no PDF
type Passage struct {
	Page    int    `yaml:"page"`
	Kind    string `yaml:"kind"`
	Content string `yaml:"content"`
}

// GroundTruth defines expected outcomes for RAGAS evaluation
type GroundTruth struct {
	ExpectedInResponse  []string `yaml:"expected_in_response" json:"expected_in_response"`
	ForbiddenInResponse []string `yaml:"forbidden_in_response" json:"forbidden_in_response"`
	// Substrings the retrieved context must contain
	ExpectedContextItems []string `yaml:"expected_context" json:"expected_context"`
}

// Result status values
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// TestResult represents the outcome of a benchmark test
type TestResult struct {
	TestID             string                 `json:"test_id"`
	TestName           string                 `json:"test_name"`
	FaithfulnessScore  float64                `json:"faithfulness"`
	ContextRecallScore float64                `json:"context_recall"`
	OverallScore       float64                `json:"overall"`
	Status             string                 `json:"status"`
	Details            map[string]interface{} `json:"details,omitempty"`
	ErrorMessage       string                 `json:"error,omitempty"`
}

type scenarioFile struct {
	Scenarios []TestScenario `yaml:"scenarios"`
}

// LoadScenarios reads a YAML scenario file and resolves document paths
// relative to it
func LoadScenarios(path string) ([]TestScenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenarios: %w", err)
	}
	var f scenarioFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scenarios %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range f.Scenarios {
		sc := &f.Scenarios[i]
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("scenario %d: %w", i+1, err)
		}
		for j, doc := range sc.Documents {
			if !filepath.IsAbs(doc) {
				sc.Documents[j] = filepath.Join(base, doc)
			}
		}
	}
	return f.Scenarios, nil
}

// Validate checks the scenario has an id, a question and something to index
func (s *TestScenario) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.Question == "" {
		return fmt.Errorf("%s: question is required", s.ID)
	}
	for _, p := range s.Passages {
		if !models.FragmentKind(p.Kind).IsValid() {
			return fmt.Errorf("%s: unknown passage kind %q", s.ID, p.Kind)
		}
	}
	return nil
}

// Fragments converts inline passages to extractor output
func (s *TestScenario) Fragments() []models.Fragment {
	frags := make([]models.Fragment, 0, len(s.Passages))
	tables, images := map[int]int{}, map[int]int{}
	for _, p := range s.Passages {
		f := models.Fragment{Content: p.Content, Page: p.Page, Kind: models.FragmentKind(p.Kind)}
		switch {
		case f.Kind == models.KindTable:
			tables[p.Page]++
			f.TableID = models.NewTableID(p.Page, tables[p.Page])
		case f.Kind.IsImage():
			images[p.Page]++
			f.ImageID = models.NewImageID(p.Page, images[p.Page])
		}
		frags = append(frags, f)
	}
	return frags
}

// GetFinancialReport asks about net revenue stated in running text
func GetFinancialReport() TestScenario {
	return TestScenario{
		ID:          "financial_text",
		Name:        "Net revenue from running text",
		Description: "Answer must use the figures stated on page 1 and not invent others",
		Passages: []Passage{
			{Page: 1, Kind: "text", Content: "Annual Report 2023\n\nRevenue grew to 100 million dollars. Expenses were 40 million dollars, leaving a net revenue of 60 million dollars."},
			{Page: 2, Kind: "text", Content: "Outlook\n\nThe board expects stable demand and plans two new offices."},
		},
		Question: "What was the net revenue in 2023?",
		GroundTruth: GroundTruth{
			ExpectedInResponse:   []string{"60"},
			ForbiddenInResponse:  []string{"75"},
			ExpectedContextItems: []string{"net revenue of 60"},
		},
	}
}

// GetTableLookup asks for a value that only appears in a table
func GetTableLookup() TestScenario {
	return TestScenario{
		ID:          "table_lookup",
		Name:        "Value from a serialized table",
		Description: "Tables are indexed as rows joined with ' | ' and must be retrievable",
		Passages: []Passage{
			{Page: 1, Kind: "text", Content: "Quarterly summary of regional sales."},
			{Page: 1, Kind: "table", Content: "Region | Q1 | Q2\nNorth  | 12 | 15\nSouth  | 9  | 11"},
		},
		Question: "What were North region sales in Q2?",
		GroundTruth: GroundTruth{
			ExpectedInResponse:   []string{"15"},
			ExpectedContextItems: []string{"North  | 12 | 15"},
		},
	}
}

// GetImageOCR asks about text that was only visible in an image
func GetImageOCR() TestScenario {
	return TestScenario{
		ID:          "image_ocr",
		Name:        "Text recovered by OCR",
		Description: "OCR output of embedded images is indexed with its marker prefix",
		Passages: []Passage{
			{Page: 3, Kind: "image_text", Content: "[Image OCR Text]: Warehouse capacity 4200 pallets"},
			{Page: 3, Kind: "text", Content: "Logistics overview for the central warehouse."},
		},
		Question: "What is the warehouse capacity?",
		GroundTruth: GroundTruth{
			ExpectedInResponse:   []string{"4200"},
			ExpectedContextItems: []string{"Warehouse capacity 4200"},
		},
	}
}

// GetAllTests returns the built-in scenarios
func GetAllTests() []TestScenario {
	return []TestScenario{
		GetFinancialReport(),
		GetTableLookup(),
		GetImageOCR(),
	}
}
