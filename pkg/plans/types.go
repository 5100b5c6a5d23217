package plans

// Limit constants
const (
	// Unlimited represents a dimension with no cap (-1)
	Unlimited int64 = -1
)

// DefaultPlanID is the plan assigned to users without a subscription record.
const DefaultPlanID = "free"

// Feature is a string type representing a plan-specific feature flag.
type Feature string

// Predefined feature flags for plans.
const (
	// FeatureAll grants every feature flag.
	FeatureAll Feature = "all_features"

	FeatureMerge        Feature = "merge"
	FeatureSplit        Feature = "split"
	FeatureCompress     Feature = "compress"
	FeatureConvert      Feature = "convert"
	FeatureOCR          Feature = "ocr"
	FeatureAISummary    Feature = "ai_summary"
	FeatureBatch        Feature = "batch_processing"
	FeaturePriority     Feature = "priority_processing"
	FeatureAPIAccess    Feature = "api_access"
	FeatureFileHistory  Feature = "file_history"
	FeatureCustomBrand  Feature = "custom_branding"
	FeatureTeamSeats    Feature = "team_seats"
	FeatureAdvancedEdit Feature = "advanced_editing"
)

// Limits holds the numeric caps of a plan. Every field accepts Unlimited.
type Limits struct {
	FilesPerMonth    int64 `yaml:"files_per_month" json:"filesPerMonth"`
	StorageBytes     int64 `yaml:"storage_bytes" json:"storageBytes"`
	AIOperations     int64 `yaml:"ai_operations" json:"aiOperations"`
	APICalls         int64 `yaml:"api_calls" json:"apiCalls"`
	MaxFileBytes     int64 `yaml:"max_file_bytes" json:"maxFileBytes"`
	MaxFilesPerBatch int64 `yaml:"max_files_per_batch" json:"maxFilesPerBatch"`
}

// fields returns limit values keyed by their wire name, used for validation and comparison.
func (l Limits) fields() map[string]int64 {
	return map[string]int64{
		"files_per_month":     l.FilesPerMonth,
		"storage_bytes":       l.StorageBytes,
		"ai_operations":       l.AIOperations,
		"api_calls":           l.APICalls,
		"max_file_bytes":      l.MaxFileBytes,
		"max_files_per_batch": l.MaxFilesPerBatch,
	}
}
