// Package kiosk runs the recognition loop of the attendance kiosk: camera
// sampling, face quality gating, descriptor matching, attendance decisions,
// and feedback to the person standing at the device.
package kiosk

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
	"github.com/kozaktomas/attendance-kiosk/internal/camera"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/ledger"
	"github.com/kozaktomas/attendance-kiosk/internal/match"
	"github.com/kozaktomas/attendance-kiosk/internal/queue"
	"github.com/kozaktomas/attendance-kiosk/internal/vision"
)

const (
	// cameraRetryInterval paces reopen attempts while the camera is down.
	cameraRetryInterval = 3 * time.Second
	// modelPingInterval paces recovery probes while in manual mode.
	modelPingInterval = 10 * time.Second
	// statusTimeout bounds the ledger status lookup inside a tick.
	statusTimeout = 3 * time.Second
)

// FaceScanner detects faces and extracts descriptors from frames.
type FaceScanner interface {
	DetectFaces(ctx context.Context, frameData []byte) ([]vision.Detection, error)
	ExtractDescriptor(ctx context.Context, cropData []byte) ([]float32, error)
	Ping(ctx context.Context) error
}

// Matcher resolves a probe descriptor against the enrolled templates.
type Matcher interface {
	Match(probe []float32) match.Result
}

// StatusFetcher returns the ledger's view of an employee at decision time.
type StatusFetcher interface {
	EmployeeStatus(ctx context.Context, employeeID string) (attendance.EmployeeStatus, error)
}

// Recorder accepts attendance events for durable delivery.
type Recorder interface {
	Enqueue(item queue.Item) error
}

// Status is a point-in-time view of the runtime for the status API.
type Status struct {
	State         State  `json:"state"`
	ManualMode    bool   `json:"manual_mode"`
	CameraHealthy bool   `json:"camera_healthy"`
	LastResult    *Event `json:"last_result,omitempty"`
}

// Runtime is the kiosk state machine. It owns the camera, the detection
// ticker, and the idle watchdog; all state transitions go through it.
type Runtime struct {
	source    camera.Source
	scanner   FaceScanner
	matcher   Matcher
	statuses  StatusFetcher
	recorder  Recorder
	announcer Announcer
	events    *EventBroadcaster
	cfg       config.KioskConfig
	gates     vision.QualityGates
	deviceID  string

	now func() time.Time

	mu               sync.Mutex
	state            State
	manualMode       bool
	cameraHealthy    bool
	lastResult       *Event
	lastDetection    time.Time
	recognitionStart time.Time
	cooldowns        map[string]time.Time
	statusCache      map[string]attendance.EmployeeStatus
	nextModelPing    time.Time
}

// NewRuntime creates a kiosk runtime. The camera is opened by Run, not here.
func NewRuntime(
	source camera.Source,
	scanner FaceScanner,
	matcher Matcher,
	statuses StatusFetcher,
	recorder Recorder,
	announcer Announcer,
	events *EventBroadcaster,
	cfg config.KioskConfig,
	gates vision.QualityGates,
	deviceID string,
) *Runtime {
	if events == nil {
		events = &EventBroadcaster{}
	}
	if announcer == nil {
		announcer = LogAnnouncer{}
	}
	return &Runtime{
		source:      source,
		scanner:     scanner,
		matcher:     matcher,
		statuses:    statuses,
		recorder:    recorder,
		announcer:   announcer,
		events:      events,
		cfg:         cfg,
		gates:       gates,
		deviceID:    deviceID,
		now:         time.Now,
		state:       StateStandby,
		cooldowns:   make(map[string]time.Time),
		statusCache: make(map[string]attendance.EmployeeStatus),
	}
}

// Events returns the broadcaster the status API subscribes to.
func (r *Runtime) Events() *EventBroadcaster {
	return r.events
}

// Snapshot returns the current runtime status.
func (r *Runtime) Snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		State:         r.state,
		ManualMode:    r.manualMode,
		CameraHealthy: r.cameraHealthy,
		LastResult:    r.lastResult,
	}
}

// CameraHealthy reports whether the last camera interaction succeeded.
// The heartbeat reporter reads this.
func (r *Runtime) CameraHealthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cameraHealthy
}

// Run drives the kiosk until the context is cancelled. An idle period with
// no detections triggers a full restart: camera reopened, state reset.
func (r *Runtime) Run(ctx context.Context) error {
	for {
		if err := r.openCamera(ctx); err != nil {
			return err
		}

		restart := r.loop(ctx)
		if err := r.source.Close(); err != nil {
			log.Printf("failed to close camera: %v", err)
		}
		if !restart {
			return ctx.Err()
		}

		log.Printf("no detections for %s, restarting kiosk runtime", r.cfg.IdleRestart)
		r.reset()
	}
}

// openCamera blocks in the error state until the camera opens or the
// context is cancelled.
func (r *Runtime) openCamera(ctx context.Context) error {
	for {
		err := r.source.Open()
		if err == nil {
			r.setCameraHealthy(true)
			return nil
		}

		r.setCameraHealthy(false)
		r.transition(StateError, Event{Type: "camera_fault", Message: fmt.Sprintf("camera open failed: %v", err)})
		log.Printf("camera open failed, retrying in %s: %v", cameraRetryInterval, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cameraRetryInterval):
		}
	}
}

// loop runs detection ticks until cancellation (returns false) or the idle
// watchdog fires (returns true). Ticks never overlap; a tick that runs past
// the detect interval simply absorbs the missed ticks.
func (r *Runtime) loop(ctx context.Context) bool {
	r.transition(StateStandby, Event{Type: "state"})
	r.mu.Lock()
	r.lastDetection = r.now()
	r.mu.Unlock()

	ticker := time.NewTicker(r.cfg.DetectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if r.idleExpired() {
				return true
			}
			r.tick(ctx)
		}
	}
}

func (r *Runtime) idleExpired() bool {
	if r.cfg.IdleRestart <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now().Sub(r.lastDetection) > r.cfg.IdleRestart
}

func (r *Runtime) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateStandby
	r.recognitionStart = time.Time{}
	r.cooldowns = make(map[string]time.Time)
}

// tick processes one camera sample end to end.
func (r *Runtime) tick(ctx context.Context) {
	if r.inManualMode() {
		r.tryRecoverModel(ctx)
		return
	}

	frame, err := r.source.Capture(ctx)
	if err != nil {
		r.cameraFault(err)
		return
	}
	r.setCameraHealthy(true)

	detections, err := r.scanner.DetectFaces(ctx, frame.Data)
	if err != nil {
		r.enterManualMode(err)
		return
	}
	if len(detections) == 0 {
		r.expireRecognition("no face")
		return
	}

	r.noteDetection()
	r.faceSeen()

	detections = vision.CollapseOverlapping(detections, vision.DuplicateIoUThreshold)
	det := largestDetection(detections)

	img, err := vision.DecodeFrame(frame.Data)
	if err != nil {
		log.Printf("failed to decode frame: %v", err)
		return
	}

	quality := vision.AssessQuality(&det, img, frame.Width, r.gates)
	if !quality.IsGood {
		// Transient rejection: keep sampling until a good frame shows up
		// or the recognition window closes.
		r.beginRecognition(StateDetecting)
		r.expireRecognition(quality.Reason)
		return
	}

	r.beginRecognition(StateRecognizing)

	crop, err := vision.CropFace(img, det.BBox)
	if err != nil {
		log.Printf("failed to crop face: %v", err)
		return
	}

	probe, err := r.scanner.ExtractDescriptor(ctx, crop)
	if err != nil {
		r.enterManualMode(err)
		return
	}

	result := r.matcher.Match(probe)
	if !result.Matched {
		r.expireRecognition("not recognized")
		return
	}

	if r.inCooldown(result.Employee.ID) {
		// Duplicate frames of the same person right after a result are
		// expected; let the window close them out quietly.
		r.expireRecognition("cooldown")
		return
	}

	r.handleMatch(ctx, result)
}

// handleMatch runs the confirm/process/announce tail of a recognition.
func (r *Runtime) handleMatch(ctx context.Context, result match.Result) {
	emp := result.Employee

	r.transition(StateConfirming, Event{Type: "recognized", EmployeeName: emp.Name})
	if !sleepCtx(ctx, r.cfg.ConfirmHold) {
		return
	}

	r.transition(StateProcessing, Event{Type: "state", EmployeeName: emp.Name})

	status := r.fetchStatus(ctx, emp.ID)
	decision := attendance.Decide(status, r.cfg.LocationID)
	decisionID := uuid.NewString()

	for _, planned := range decision.Events {
		item := queue.Item{
			IdempotencyKey: uuid.NewString(),
			DecisionID:     decisionID,
			EmployeeID:     emp.ID,
			Request: ledger.ProcessRequest{
				EmployeeID: emp.ID,
				LocationID: planned.LocationID,
				DeviceID:   r.deviceID,
				ActionType: planned.Type,
				Confidence: result.Confidence,
				TempExitID: planned.TempExitID,
			},
		}
		if err := r.recorder.Enqueue(item); err != nil {
			log.Printf("failed to enqueue attendance event for %s: %v", emp.ID, err)
			r.fail(emp.ID, emp.Name, "Could not record, please try again")
			return
		}
	}

	r.mu.Lock()
	r.statusCache[emp.ID] = nextStatus(decision, r.cfg.LocationID)
	r.mu.Unlock()

	r.succeed(emp.ID, emp.Name, decision)
}

// fetchStatus asks the ledger for the employee's current status. When the
// ledger is unreachable the locally tracked status keeps decisions sane
// until connectivity returns; the queued events reconcile the rest.
func (r *Runtime) fetchStatus(ctx context.Context, employeeID string) attendance.EmployeeStatus {
	sctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	status, err := r.statuses.EmployeeStatus(sctx, employeeID)
	if err == nil {
		r.mu.Lock()
		r.statusCache[employeeID] = status
		r.mu.Unlock()
		return status
	}

	log.Printf("status lookup failed for %s, using local state: %v", employeeID, err)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusCache[employeeID]
}

// nextStatus projects the employee status after the decision's events, so
// repeated offline visits keep toggling correctly.
func nextStatus(decision attendance.Decision, location string) attendance.EmployeeStatus {
	switch decision.Primary() {
	case attendance.ActionClockOut, attendance.ActionTransferOut:
		return attendance.EmployeeStatus{Kind: attendance.StatusAbsent}
	default:
		return attendance.EmployeeStatus{Kind: attendance.StatusPresent, LocationID: location}
	}
}

func (r *Runtime) succeed(employeeID, name string, decision attendance.Decision) {
	event := Event{
		Type:         "result",
		State:        StateSuccess,
		Message:      decision.Message,
		EmployeeName: name,
		Action:       decision.Primary(),
		At:           r.now(),
	}

	r.mu.Lock()
	r.state = StateSuccess
	r.lastResult = &event
	r.cooldowns[employeeID] = r.now().Add(r.cfg.Cooldown)
	r.recognitionStart = time.Time{}
	r.mu.Unlock()

	r.events.SendEvent(event)
	r.announcer.Announce(name, decision.Message)
	r.transition(StateStandby, Event{Type: "state"})
}

func (r *Runtime) fail(employeeID, name, message string) {
	event := Event{
		Type:         "result",
		State:        StateError,
		Message:      message,
		EmployeeName: name,
		At:           r.now(),
	}

	r.mu.Lock()
	r.state = StateError
	r.lastResult = &event
	r.cooldowns[employeeID] = r.now().Add(r.cfg.Cooldown)
	r.recognitionStart = time.Time{}
	r.mu.Unlock()

	r.events.SendEvent(event)
	r.announcer.Announce(name, message)
	r.transition(StateStandby, Event{Type: "state"})
}

// faceSeen surfaces the detecting state on the first frame of a session,
// before any quality verdict. Later frames keep whatever state the session
// has reached.
func (r *Runtime) faceSeen() {
	r.mu.Lock()
	standby := r.state == StateStandby
	r.mu.Unlock()
	if standby {
		r.beginRecognition(StateDetecting)
	}
}

// beginRecognition opens the per-person recognition window on the first
// sample of a session and records the requested state.
func (r *Runtime) beginRecognition(state State) {
	r.mu.Lock()
	if r.recognitionStart.IsZero() {
		r.recognitionStart = r.now()
	}
	changed := r.state != state
	r.state = state
	r.mu.Unlock()

	if changed {
		r.events.SendEvent(Event{Type: "state", State: state, At: r.now()})
	}
}

// expireRecognition returns to standby once the recognition window has
// been open too long without a match. Rejections inside the window are
// transient and produce no error feedback.
func (r *Runtime) expireRecognition(reason string) {
	r.mu.Lock()
	expired := !r.recognitionStart.IsZero() && r.now().Sub(r.recognitionStart) > r.cfg.RecognitionWindow
	if expired {
		r.recognitionStart = time.Time{}
		r.state = StateStandby
	}
	r.mu.Unlock()

	if expired {
		r.events.SendEvent(Event{Type: "window_expired", State: StateStandby, Message: reason, At: r.now()})
	}
}

func (r *Runtime) inCooldown(employeeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.cooldowns[employeeID]
	return ok && r.now().Before(until)
}

func (r *Runtime) noteDetection() {
	r.mu.Lock()
	r.lastDetection = r.now()
	r.mu.Unlock()
}

func (r *Runtime) cameraFault(err error) {
	r.setCameraHealthy(false)
	r.transition(StateError, Event{Type: "camera_fault", Message: err.Error()})
	log.Printf("camera capture failed: %v", err)

	// Reopen in place; the next tick retries the capture.
	if cerr := r.source.Close(); cerr != nil {
		log.Printf("failed to close faulted camera: %v", cerr)
	}
	if oerr := r.source.Open(); oerr != nil {
		log.Printf("camera reopen failed: %v", oerr)
	}
}

// enterManualMode degrades the kiosk when the extraction model is down.
// Recognition stops, attendance falls back to manual entry at the ledger,
// and the runtime probes the model until it comes back.
func (r *Runtime) enterManualMode(err error) {
	r.mu.Lock()
	already := r.manualMode
	r.manualMode = true
	r.state = StateManual
	r.recognitionStart = time.Time{}
	r.nextModelPing = r.now().Add(modelPingInterval)
	r.mu.Unlock()

	if !already {
		log.Printf("extraction model fault, switching to manual mode: %v", err)
		r.events.SendEvent(Event{Type: "manual_mode", State: StateManual, Message: err.Error(), At: r.now()})
		r.announcer.Announce("", "Face recognition unavailable, please use manual entry")
	}
}

func (r *Runtime) inManualMode() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manualMode
}

func (r *Runtime) tryRecoverModel(ctx context.Context) {
	r.mu.Lock()
	due := !r.now().Before(r.nextModelPing)
	if due {
		r.nextModelPing = r.now().Add(modelPingInterval)
	}
	r.mu.Unlock()
	if !due {
		return
	}

	if err := r.scanner.Ping(ctx); err != nil {
		return
	}

	r.mu.Lock()
	r.manualMode = false
	r.state = StateStandby
	r.mu.Unlock()

	log.Printf("extraction model recovered, leaving manual mode")
	r.events.SendEvent(Event{Type: "manual_mode_end", State: StateStandby, At: r.now()})
}

func (r *Runtime) setCameraHealthy(healthy bool) {
	r.mu.Lock()
	r.cameraHealthy = healthy
	r.mu.Unlock()
}

func (r *Runtime) transition(state State, event Event) {
	r.mu.Lock()
	changed := r.state != state
	r.state = state
	r.mu.Unlock()

	if changed {
		event.State = state
		if event.At.IsZero() {
			event.At = r.now()
		}
		r.events.SendEvent(event)
	}
}

// largestDetection picks the closest face when the frame holds several.
func largestDetection(detections []vision.Detection) vision.Detection {
	best := detections[0]
	bestArea := best.Width() * best.Height()
	for _, d := range detections[1:] {
		if area := d.Width() * d.Height(); area > bestArea {
			best = d
			bestArea = area
		}
	}
	return best
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
