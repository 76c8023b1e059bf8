// Package catalog defines the tool and workflow graph schema and builds
// the catalog graph from extracted JSON data.
package catalog

// Node labels.
const (
	LabelTool         = "Tool"
	LabelWorkflow     = "Workflow"
	LabelWorkflowStep = "WorkflowStep"
	LabelFileFormat   = "FileFormat"
	LabelCategory     = "Category"
	LabelCommunity    = "Community"
	LabelSubCommunity = "SubCommunity"
)

// Edge types.
const (
	EdgeHasStep        = "HAS_STEP"
	EdgeUsesTool       = "USES_TOOL"
	EdgeNextStep       = "NEXT_STEP"
	EdgeAcceptsInput   = "ACCEPTS_INPUT"
	EdgeProducesOutput = "PRODUCES_OUTPUT"
	EdgeIncludesTool   = "INCLUDES_TOOL"
	EdgeBelongsTo      = "BELONGS_TO"
	EdgeInCommunity    = "IN_COMMUNITY"
	EdgeInSubCommunity = "IN_SUBCOMMUNITY"
)

// Property keys.
const (
	PropName           = "name"
	PropDescription    = "description"
	PropEmbedding      = "embedding"
	PropNumSteps       = "num_steps"
	PropStepNumber     = "step_number"
	PropWorkflowID     = "workflow_id"
	PropAnnotation     = "annotation"
	PropCommunityID    = "communityId"
	PropSubCommunityID = "subCommunityId"
	PropSummary        = "summary"
	PropSize           = "size"
)

// EmbeddingDimensions is the required embedding width. Vectors with any
// other width are excluded from projections.
const EmbeddingDimensions = 384
