package plans

const (
	kb int64 = 1 << 10
	mb       = kb << 10
	gb       = mb << 10
)

// DefaultPlans returns the compiled-in plan set: free < basic < pro < premium.
func DefaultPlans() []Plan {
	return []Plan{
		{
			ID:          "free",
			Name:        "Free",
			Description: "Basic document tools for occasional use",
			Tier:        0,
			Limits: Limits{
				FilesPerMonth:    10,
				StorageBytes:     100 * mb,
				AIOperations:     5,
				APICalls:         100,
				MaxFileBytes:     10 * mb,
				MaxFilesPerBatch: 5,
			},
			Features: []Feature{FeatureMerge, FeatureSplit, FeatureCompress},
		},
		{
			ID:          "basic",
			Name:        "Basic",
			Description: "More files and conversions for individuals",
			Tier:        1,
			Limits: Limits{
				FilesPerMonth:    50,
				StorageBytes:     gb,
				AIOperations:     50,
				APICalls:         1000,
				MaxFileBytes:     25 * mb,
				MaxFilesPerBatch: 10,
			},
			Features: []Feature{FeatureMerge, FeatureSplit, FeatureCompress, FeatureConvert, FeatureFileHistory},
		},
		{
			ID:          "pro",
			Name:        "Pro",
			Description: "AI features, batch processing and API access",
			Tier:        2,
			Limits: Limits{
				FilesPerMonth:    500,
				StorageBytes:     10 * gb,
				AIOperations:     500,
				APICalls:         10000,
				MaxFileBytes:     100 * mb,
				MaxFilesPerBatch: 50,
			},
			Features: []Feature{
				FeatureMerge, FeatureSplit, FeatureCompress, FeatureConvert, FeatureFileHistory,
				FeatureOCR, FeatureAISummary, FeatureBatch, FeatureAPIAccess, FeatureAdvancedEdit,
			},
		},
		{
			ID:          "premium",
			Name:        "Premium",
			Description: "Everything, without caps",
			Tier:        3,
			Limits: Limits{
				FilesPerMonth:    Unlimited,
				StorageBytes:     Unlimited,
				AIOperations:     Unlimited,
				APICalls:         Unlimited,
				MaxFileBytes:     500 * mb,
				MaxFilesPerBatch: Unlimited,
			},
			Features: []Feature{FeatureAll},
		},
	}
}
