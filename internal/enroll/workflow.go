// Package enroll implements the operator-driven face enrollment workflow:
// three quality-gated pose captures, immediate descriptor extraction, and an
// atomic template install with an audit trail.
package enroll

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance-kiosk/internal/camera"
	"github.com/kozaktomas/attendance-kiosk/internal/directory"
	"github.com/kozaktomas/attendance-kiosk/internal/match"
	"github.com/kozaktomas/attendance-kiosk/internal/vision"
)

// State is the enrollment workflow state.
type State string

const (
	StateSetup      State = "setup"
	StateCapturing  State = "capturing"
	StateProcessing State = "processing"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// Pose identifies one of the required capture poses.
type Pose struct {
	Index int
	Name  string
}

// RequiredPoses is the fixed capture sequence. All three must be accepted
// before anything is persisted.
var RequiredPoses = []Pose{
	{Index: 0, Name: "front"},
	{Index: 1, Name: "left"},
	{Index: 2, Name: "right"},
}

// FaceScanner detects faces and extracts descriptors from frames.
type FaceScanner interface {
	DetectFaces(ctx context.Context, frameData []byte) ([]vision.Detection, error)
	ExtractDescriptor(ctx context.Context, cropData []byte) ([]float32, error)
}

// TemplateInstaller persists an accepted template set atomically.
type TemplateInstaller interface {
	Install(ctx context.Context, employeeID, enrollmentID string, templates []directory.NewTemplate) ([]match.Descriptor, error)
}

// AuditWriter records enrollment attempts.
type AuditWriter interface {
	Record(ctx context.Context, audit directory.Audit) (string, error)
}

// PoseCapture is one accepted pose with its extracted descriptor.
type PoseCapture struct {
	Pose       Pose
	Quality    float64
	Descriptor []float32
}

// Result describes a completed enrollment.
type Result struct {
	EnrollmentID string
	Employee     match.Employee
	Captures     []PoseCapture
	MeanQuality  float64
}

// Options tune the capture loop. Callback fields are optional and used by
// the CLI to drive operator prompts.
type Options struct {
	// CaptureInterval is the delay between capture attempts for a pose.
	CaptureInterval time.Duration
	// MaxAttemptsPerPose bounds rejected captures before the attempt fails.
	MaxAttemptsPerPose int
	// MaxRetriesPerPose bounds extraction retries for an accepted capture.
	MaxRetriesPerPose int

	OnState    func(state State)
	OnPose     func(pose Pose)
	OnRejected func(pose Pose, reason string)
	OnAccepted func(pose Pose, quality float64)
}

func (o Options) withDefaults() Options {
	if o.CaptureInterval <= 0 {
		o.CaptureInterval = 400 * time.Millisecond
	}
	if o.MaxAttemptsPerPose <= 0 {
		o.MaxAttemptsPerPose = 25
	}
	if o.MaxRetriesPerPose <= 0 {
		o.MaxRetriesPerPose = 2
	}
	return o
}

// Workflow drives one enrollment attempt from capture to install.
type Workflow struct {
	source    camera.Source
	scanner   FaceScanner
	installer TemplateInstaller
	audits    AuditWriter
	store     *match.TemplateStore
	gates     vision.QualityGates
	deviceID  string
	opts      Options
}

// NewWorkflow creates an enrollment workflow.
func NewWorkflow(
	source camera.Source,
	scanner FaceScanner,
	installer TemplateInstaller,
	audits AuditWriter,
	store *match.TemplateStore,
	gates vision.QualityGates,
	deviceID string,
	opts Options,
) *Workflow {
	return &Workflow{
		source:    source,
		scanner:   scanner,
		installer: installer,
		audits:    audits,
		store:     store,
		gates:     gates,
		deviceID:  deviceID,
		opts:      opts.withDefaults(),
	}
}

// Run executes one enrollment attempt for the employee. Nothing is persisted
// unless all three poses are accepted and the install commits; every outcome
// is recorded in the audit trail.
func (w *Workflow) Run(ctx context.Context, emp match.Employee) (*Result, error) {
	enrollmentID := uuid.NewString()
	w.setState(StateSetup)

	captures, err := w.captureAll(ctx)
	if err != nil {
		w.setState(StateFailed)
		w.writeAudit(emp.ID, directory.AuditOutcomeFailed, err.Error(), meanQuality(captures))
		return nil, err
	}

	w.setState(StateProcessing)

	templates := make([]directory.NewTemplate, 0, len(captures))
	for _, c := range captures {
		templates = append(templates, directory.NewTemplate{
			PoseIndex: c.Pose.Index,
			Quality:   c.Quality,
			Embedding: c.Descriptor,
		})
	}

	installed, err := w.installer.Install(ctx, emp.ID, enrollmentID, templates)
	if err != nil {
		w.setState(StateFailed)
		w.writeAudit(emp.ID, directory.AuditOutcomeFailed, fmt.Sprintf("install: %v", err), meanQuality(captures))
		return nil, fmt.Errorf("failed to install templates: %w", err)
	}

	emp.FaceRegistered = true
	if w.store != nil {
		w.store.Install(emp, installed)
	}

	w.setState(StateComplete)
	mean := meanQuality(captures)
	w.writeAudit(emp.ID, directory.AuditOutcomeCompleted, "", mean)

	return &Result{
		EnrollmentID: enrollmentID,
		Employee:     emp,
		Captures:     captures,
		MeanQuality:  mean,
	}, nil
}

// captureAll walks the pose sequence. Extraction failures send the pose back
// to capturing; the whole attempt aborts once a pose runs out of attempts.
func (w *Workflow) captureAll(ctx context.Context) ([]PoseCapture, error) {
	w.setState(StateCapturing)

	captures := make([]PoseCapture, 0, len(RequiredPoses))
	for _, pose := range RequiredPoses {
		if w.opts.OnPose != nil {
			w.opts.OnPose(pose)
		}

		capture, err := w.capturePose(ctx, pose)
		if err != nil {
			return captures, fmt.Errorf("pose %s: %w", pose.Name, err)
		}
		captures = append(captures, *capture)

		if w.opts.OnAccepted != nil {
			w.opts.OnAccepted(pose, capture.Quality)
		}
	}
	return captures, nil
}

func (w *Workflow) capturePose(ctx context.Context, pose Pose) (*PoseCapture, error) {
	retries := 0
	for attempt := 0; attempt < w.opts.MaxAttemptsPerPose; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(w.opts.CaptureInterval):
			}
		}

		frame, err := w.source.Capture(ctx)
		if err != nil {
			return nil, fmt.Errorf("camera capture failed: %w", err)
		}

		crop, quality, reason := w.assess(ctx, frame)
		if crop == nil {
			w.reject(pose, reason)
			continue
		}

		descriptor, err := w.scanner.ExtractDescriptor(ctx, crop)
		if err != nil {
			// No partial persistence: the capture is discarded and the
			// pose goes back to capturing.
			retries++
			if retries > w.opts.MaxRetriesPerPose {
				return nil, fmt.Errorf("descriptor extraction failed: %w", err)
			}
			w.reject(pose, fmt.Sprintf("extraction failed: %v", err))
			continue
		}

		return &PoseCapture{Pose: pose, Quality: quality, Descriptor: descriptor}, nil
	}
	return nil, fmt.Errorf("no acceptable capture after %d attempts", w.opts.MaxAttemptsPerPose)
}

// assess detects the single enrollment face in the frame and gates it.
// Returns the face crop when accepted, otherwise a rejection reason.
func (w *Workflow) assess(ctx context.Context, frame *camera.Frame) ([]byte, float64, string) {
	detections, err := w.scanner.DetectFaces(ctx, frame.Data)
	if err != nil {
		return nil, 0, fmt.Sprintf("detection failed: %v", err)
	}
	if len(detections) == 0 {
		return nil, 0, "no face in frame"
	}
	detections = vision.CollapseOverlapping(detections, vision.DuplicateIoUThreshold)
	if len(detections) > 1 {
		return nil, 0, "multiple faces in frame"
	}

	img, err := vision.DecodeFrame(frame.Data)
	if err != nil {
		return nil, 0, fmt.Sprintf("frame decode failed: %v", err)
	}

	det := detections[0]
	quality := vision.AssessQuality(&det, img, frame.Width, w.gates)
	if !quality.IsGood {
		return nil, 0, quality.Reason
	}

	crop, err := vision.CropFace(img, det.BBox)
	if err != nil {
		return nil, 0, fmt.Sprintf("face crop failed: %v", err)
	}
	return crop, quality.Score, ""
}

func (w *Workflow) setState(state State) {
	if w.opts.OnState != nil {
		w.opts.OnState(state)
	}
}

func (w *Workflow) reject(pose Pose, reason string) {
	if w.opts.OnRejected != nil {
		w.opts.OnRejected(pose, reason)
	}
}

func (w *Workflow) writeAudit(employeeID, outcome, reason string, mean float64) {
	if w.audits == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := w.audits.Record(ctx, directory.Audit{
		EmployeeID:    employeeID,
		DeviceID:      w.deviceID,
		Outcome:       outcome,
		FailureReason: reason,
		MeanQuality:   mean,
	})
	if err != nil {
		log.Printf("failed to record enrollment audit for %s: %v", employeeID, err)
	}
}

func meanQuality(captures []PoseCapture) float64 {
	if len(captures) == 0 {
		return 0
	}
	var sum float64
	for _, c := range captures {
		sum += c.Quality
	}
	return sum / float64(len(captures))
}
