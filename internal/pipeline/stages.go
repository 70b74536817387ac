package pipeline

import "fmt"

// Stage names one step of the processing pipeline.
type Stage string

const (
	StageResources     Stage = "loading_resources"
	StageReading       Stage = "reading"
	StageExtracting    Stage = "extracting"
	StagePreprocessing Stage = "preprocessing"
	StageSaving        Stage = "saving"
)

// StageDefinition holds the progress window and user-facing messages of a stage.
type StageDefinition struct {
	Name Stage
	// Start is written when the stage begins, End when it succeeds.
	Start, End    int
	StartDetails  string
	ProgressLabel string
	FailurePrefix string
	Dependencies  []Stage
}

// StageOrder is the fixed execution order within one job.
var StageOrder = []Stage{StageResources, StageReading, StageExtracting, StagePreprocessing, StageSaving}

// StageRegistry holds all stage definitions. Windows are non-overlapping and
// increase along StageOrder; 100 is reserved for the terminal record.
var StageRegistry = map[Stage]StageDefinition{
	StageResources: {
		Name:          StageResources,
		Start:         5,
		End:           10,
		StartDetails:  "Loading stopword resources...",
		FailurePrefix: "Error loading stopword resources",
	},
	StageReading: {
		Name:          StageReading,
		Start:         15,
		End:           15,
		StartDetails:  "Reading PDF file...",
		FailurePrefix: "Error opening file",
		Dependencies:  []Stage{StageResources},
	},
	StageExtracting: {
		Name:          StageExtracting,
		Start:         20,
		End:           50,
		StartDetails:  "Extracting text from PDF...",
		ProgressLabel: "Extracting text",
		FailurePrefix: "Error extracting text from PDF",
		Dependencies:  []Stage{StageReading},
	},
	StagePreprocessing: {
		Name:          StagePreprocessing,
		Start:         60,
		End:           90,
		StartDetails:  "Preprocessing extracted text...",
		ProgressLabel: "Preprocessing text",
		FailurePrefix: "Error preprocessing text",
		Dependencies:  []Stage{StageExtracting},
	},
	StageSaving: {
		Name:          StageSaving,
		Start:         95,
		End:           95,
		StartDetails:  "Saving processed text...",
		FailurePrefix: "Error saving processed text",
		Dependencies:  []Stage{StagePreprocessing},
	},
}

// StageError is a failure raised inside a stage. Its message is the details
// text recorded on the job.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", StageRegistry[e.Stage].FailurePrefix, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
