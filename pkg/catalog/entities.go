package catalog

import "fmt"

// Tool is one extracted tool record from tools.json.
type Tool struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	HelpText      string   `json:"help_text"`
	Category      string   `json:"category"`
	InputFormats  []string `json:"input_formats"`
	OutputFormats []string `json:"output_formats"`
}

// EmbedText composes the text embedded for a tool.
func (t *Tool) EmbedText() string {
	return fmt.Sprintf("Tool: %s\nTool_id: %s\nDescription: %s\nHelp: %s",
		t.Name, t.ID, t.Description, t.HelpText)
}

// Workflow is one extracted workflow record from workflows.json.
type Workflow struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	NumSteps      int            `json:"num_steps"`
	IncludedTools []string       `json:"included_tools"`
	Steps         []WorkflowStep `json:"steps"`
}

// EmbedText composes the text embedded for a workflow.
func (w *Workflow) EmbedText() string {
	return fmt.Sprintf("Workflow: %s\nWorkflow_id: %s\nDescription: %s",
		w.Name, w.ID, w.Description)
}

// WorkflowStep is one ordered step within a workflow.
type WorkflowStep struct {
	StepNumber int    `json:"step_number"`
	ToolID     string `json:"tool_id"`
	Annotation string `json:"annotation"`
}

// StepID derives the composite step node id.
func StepID(workflowID string, stepNumber int) string {
	return fmt.Sprintf("%s_%d", workflowID, stepNumber)
}
