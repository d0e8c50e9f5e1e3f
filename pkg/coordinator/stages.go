package coordinator

// Pipeline stage names, in execution order.
const (
	StageEnhancePrompt  = "enhance_prompt"
	StageValidateSafety = "validate_safety"
	StageGenerateImages = "generate_images"
	StageCategorize     = "categorize"
	StagePersist        = "persist"
	StageUpdateMemory   = "update_memory"
)

// StagePolicy names how a stage's failures are treated.
type StagePolicy string

const (
	// StrictStage fails the whole workflow on any error; later stages
	// never run.
	StrictStage StagePolicy = "strict"

	// BatchStage runs one collaborator call per requested item, collects
	// per-item errors, and fails only when no item succeeded.
	BatchStage StagePolicy = "batch"
)

type stage struct {
	name        string
	description string
	policy      StagePolicy

	// soft stages log their errors and complete anyway. Memory updates
	// are an enhancement; losing one never invalidates produced images.
	soft bool
}

// The fixed pipeline. Order is execution order; each stage's output feeds
// the next.
var pipelineStages = []stage{
	{name: StageEnhancePrompt, description: "Enhance the raw prompt with style and preference detail", policy: StrictStage},
	{name: StageValidateSafety, description: "Validate the enhanced prompt against safety policy", policy: StrictStage},
	{name: StageGenerateImages, description: "Generate the requested images", policy: BatchStage},
	{name: StageCategorize, description: "Categorize and tag generated images", policy: StrictStage},
	{name: StagePersist, description: "Persist images and metadata", policy: StrictStage},
	{name: StageUpdateMemory, description: "Record the request in user memory", policy: StrictStage, soft: true},
}
