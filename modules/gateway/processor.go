package gateway

import (
	"context"
	"mime/multipart"

	"github.com/google/uuid"

	"github.com/dmitrymomot/quotagate/pkg/plans"
)

// Operation names a metered document operation.
type Operation string

const (
	OpMerge     Operation = "merge"
	OpSplit     Operation = "split"
	OpCompress  Operation = "compress"
	OpConvert   Operation = "convert"
	OpSummarize Operation = "summarize"
)

// Feature returns the plan feature that unlocks op.
func (op Operation) Feature() plans.Feature {
	switch op {
	case OpMerge:
		return plans.FeatureMerge
	case OpSplit:
		return plans.FeatureSplit
	case OpCompress:
		return plans.FeatureCompress
	case OpConvert:
		return plans.FeatureConvert
	case OpSummarize:
		return plans.FeatureAISummary
	}
	return ""
}

// Job describes an operation handed to the processor.
type Job struct {
	ID        string    `json:"jobId"`
	Operation Operation `json:"operation"`
	Files     int       `json:"files"`
	Bytes     int64     `json:"bytes"`
	Plan      string    `json:"plan"`
}

// Processor runs admitted document operations. The gateway owns admission
// and metering only; the work itself belongs to the document service.
type Processor interface {
	Process(ctx context.Context, job Job, files []*multipart.FileHeader) (Job, error)
}

// AcceptingProcessor acknowledges every job without doing any work.
type AcceptingProcessor struct{}

// Process assigns a job ID and returns the job unchanged otherwise.
func (AcceptingProcessor) Process(_ context.Context, job Job, _ []*multipart.FileHeader) (Job, error) {
	job.ID = uuid.NewString()
	return job, nil
}
