// Package orchestrator sequences the planning of each frame: slice map,
// partition, rate control, cost tables and region maps, then hand-off to
// an external Dispatcher. It also owns the cross-frame wait on the
// dispatcher's statistics that the rate controller depends on.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/five82/brcplan/internal/capability"
	"github.com/five82/brcplan/internal/costmodel"
	brcerrors "github.com/five82/brcplan/internal/errors"
	"github.com/five82/brcplan/internal/logging"
	"github.com/five82/brcplan/internal/partition"
	"github.com/five82/brcplan/internal/ratecontrol"
	"github.com/five82/brcplan/internal/slicemap"
)

// DefaultFeedbackTimeout bounds the wait for a frame's statistics.
const DefaultFeedbackTimeout = 10 * time.Second

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithProfile selects the capability profile.
func WithProfile(p capability.Profile) Option {
	return func(s *Session) { s.profile = p }
}

// WithFeedbackTimeout sets the per-frame feedback wait.
func WithFeedbackTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.feedbackTimeout = d
		}
	}
}

// WithFeedbackObserver registers fn to be called with every frame's
// statistics as they are applied to the rate controller.
func WithFeedbackObserver(fn func(frame int64, stats FrameStatistics)) Option {
	return func(s *Session) { s.observe = fn }
}

type inflight struct {
	handle Handle
	level  ratecontrol.Level
}

// Session plans the frames of one stream. Its methods are serialized by a
// mutex; planning is single threaded by contract.
type Session struct {
	mu sync.Mutex

	id              string
	profile         capability.Profile
	dispatcher      Dispatcher
	feedbackTimeout time.Duration
	observe         func(int64, FrameStatistics)
	log             *logging.Logger

	brc    *ratecontrol.Controller
	slices *slicemap.Builder
	costs  *costmodel.Cache

	stream     StreamParams
	configured bool
	pending    bool // Init or Reset due before the next frame
	sliceBuf   []uint16

	base      int64 // session frame number of controller frame 0
	nextFrame int64
	inflight  map[int64]inflight

	err error // fatal error that ended the session
}

// New creates a session that hands plans to d.
func New(d Dispatcher, opts ...Option) (*Session, error) {
	if d == nil {
		return nil, brcerrors.NewConfigError("cannot create session", ErrNoDispatcher)
	}
	s := &Session{
		id:              uuid.New().String(),
		profile:         capability.Default,
		dispatcher:      d,
		feedbackTimeout: DefaultFeedbackTimeout,
		log:             logging.Global(),
		slices:          slicemap.NewBuilder(),
		costs:           costmodel.NewCache(),
		inflight:        make(map[int64]inflight),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = &logging.Logger{Logger: s.log.With("session", s.id)}
	s.brc = ratecontrol.New(s.log)
	return s, nil
}

// ID returns the session's UUID.
func (s *Session) ID() string { return s.id }

// Profile returns the capability profile.
func (s *Session) Profile() capability.Profile { return s.profile }

func (s *Session) checkStream(p StreamParams) error {
	if p.RegionsPerSlice < partition.MinRegionsPerSlice || p.RegionsPerSlice > partition.MaxRegionsPerSlice {
		return fmt.Errorf("%w: %d not in [%d,%d]", partition.ErrRegionsPerSlice,
			p.RegionsPerSlice, partition.MinRegionsPerSlice, partition.MaxRegionsPerSlice)
	}
	if !p.Walk.Valid() {
		return fmt.Errorf("%w: %v", partition.ErrInvalidWalk, p.Walk)
	}
	if err := s.profile.Check(capability.Request{
		Walk:          p.Walk,
		ParallelBRC:   p.RateControl.ParallelBRC,
		RegionControl: p.RateControl.RegionControl,
	}); err != nil {
		return err
	}
	if _, err := ratecontrol.NewSetup(p.RateControl, false); err != nil {
		return err
	}
	return nil
}

// ConfigureStream validates p and schedules Init (first call) or Reset
// (later calls) for the next planned frame.
func (s *Session) ConfigureStream(p StreamParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.failed()
	}
	if err := s.checkStream(p); err != nil {
		return brcerrors.NewConfigError("invalid stream parameters", fmt.Errorf("%w: %w", ErrStreamParams, err))
	}
	s.stream = p
	s.configured = true
	s.pending = true
	s.costs.Reset()

	s.log.Info("stream configured",
		"mode", p.RateControl.Mode.String(),
		"target_bitrate", p.RateControl.TargetBitrate,
		"regions_per_slice", p.RegionsPerSlice,
		"walk", p.Walk.String(),
		"profile", s.profile.Name)
	return nil
}

// SetSliceMapBuffer makes PlanFrame write slice maps into buf. A buffer
// shorter than the frame fails the plan with a retryable insufficient-space
// error before any state changes; nil returns to session-owned maps.
func (s *Session) SetSliceMapBuffer(buf []uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sliceBuf = buf
}

func (s *Session) failed() error {
	return brcerrors.NewStateError("session unusable", fmt.Errorf("%w: %w", ErrSessionFailed, s.err))
}

// fail records a fatal error. Later calls report ErrSessionFailed.
func (s *Session) fail(err error) error {
	s.err = err
	s.log.Error("session terminated", "error", err)
	return err
}

// PlanFrame plans frame desc and submits it to the dispatcher. With no
// slices the frame is one slice. Errors that leave the rate controller
// advanced end the session.
func (s *Session) PlanFrame(ctx context.Context, desc FrameDescriptor, sl []slicemap.Slice, rois []ratecontrol.ROI) (*FramePlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.failed()
	}
	if !s.configured {
		return nil, brcerrors.NewStateError("frame planned before ConfigureStream", ErrNotConfigured)
	}
	if desc.FrameNumber != s.nextFrame {
		return nil, brcerrors.NewStateError("frame planned out of order",
			fmt.Errorf("%w: frame %d, expected %d", ErrFrameOrder, desc.FrameNumber, s.nextFrame))
	}

	desc = desc.withDefaults(s.profile.LCUSize)
	if err := desc.validate(); err != nil {
		return nil, brcerrors.NewConfigError("invalid frame descriptor", err)
	}
	width, height := desc.WidthLCU(), desc.HeightLCU()
	n := width * height
	if len(sl) == 0 {
		sl = slicemap.Single(n)
	}
	if err := s.profile.Check(capability.Request{Slices: len(sl)}); err != nil {
		return nil, brcerrors.NewConfigError("invalid slice layout", err)
	}
	regionOn := s.stream.RateControl.RegionControl || len(rois) > 0
	if regionOn {
		if err := ratecontrol.ValidateROIs(width, height, rois); err != nil {
			return nil, brcerrors.NewConfigError("invalid ROI", err)
		}
	}

	plan := &FramePlan{SessionID: s.id, Frame: desc}

	// Slice map.
	if s.sliceBuf != nil {
		if err := s.slices.BuildInto(s.sliceBuf, n, sl); err != nil {
			return nil, err
		}
		plan.SliceMap = &slicemap.Map{IDs: s.sliceBuf[:n], NumSlices: len(sl)}
	} else {
		m, err := s.slices.Build(n, sl)
		if err != nil {
			return nil, err
		}
		plan.SliceMap = m
	}

	// Partition.
	part, err := partition.Partition(partition.Input{
		WidthLCU:        width,
		HeightLCU:       height,
		Slices:          sl,
		RegionsPerSlice: s.stream.RegionsPerSlice,
		Walk:            s.stream.Walk,
		MaxColors:       s.profile.MaxColors,
	})
	if err != nil {
		return nil, err
	}
	plan.Partition = part

	// Init or Reset.
	if s.pending {
		if err := s.applyStream(ctx, len(rois) > 0); err != nil {
			return nil, s.fail(err)
		}
	}

	// Wait for the feedback the update depends on, then update.
	if err := s.awaitFeedback(ctx, desc.FrameNumber); err != nil {
		return nil, s.fail(err)
	}
	dec, err := s.brc.UpdateFrame(ratecontrol.FrameInput{
		FrameNumber:    desc.FrameNumber - s.base,
		Type:           desc.Type,
		HierLevelPlus1: desc.HierLevelPlus1,
		SkippedFrames:  desc.SkippedFrames,
		SkippedSize:    desc.SkippedSize,
	})
	if err != nil {
		// Nothing advanced; the caller may fix the descriptor and retry.
		return nil, err
	}
	dec.FrameNumber = desc.FrameNumber
	plan.Decision = dec

	// Cost tables.
	plan.Costs = s.costs.Get(desc.SliceType(), dec.QP, desc.Transform)

	// Region map and per-LCU QP.
	if regionOn {
		rm, err := s.brc.UpdateRegions(ratecontrol.RegionInput{
			WidthLCU:  width,
			HeightLCU: height,
			ROIs:      rois,
			Smooth:    s.stream.SmoothROI,
		})
		if err != nil {
			return nil, s.fail(err)
		}
		plan.Regions = rm
		plan.QPMap, plan.RegionCosts = s.regionQPs(desc, dec, rm)
	}

	// Hand-off.
	h, err := s.dispatcher.SubmitRegionWork(ctx, plan)
	if err != nil {
		return nil, s.fail(brcerrors.NewDispatchError(fmt.Sprintf("submit frame %d", desc.FrameNumber), err))
	}
	plan.Handle = h
	s.inflight[desc.FrameNumber] = inflight{handle: h, level: dec.Level}
	s.nextFrame++

	s.log.Debug("frame planned",
		"frame", desc.FrameNumber,
		"type", desc.Type.String(),
		"qp", dec.QP,
		"target", dec.TargetSize,
		"regions", part.NumRegions,
		"handle", string(h))
	return plan, nil
}

func (s *Session) applyStream(ctx context.Context, roiEnabled bool) error {
	p := s.stream
	var err error
	switch {
	case s.brc.Phase() == ratecontrol.PhaseUninitialized:
		err = s.brc.Init(p.RateControl, roiEnabled)
		s.base = s.nextFrame
	case p.FullReset:
		// Outstanding frames belong to the old history; collect them first.
		if err = s.drain(ctx); err != nil {
			return err
		}
		err = s.brc.Reset(p.RateControl, roiEnabled, true)
		s.base = s.nextFrame
	default:
		err = s.brc.Reset(p.RateControl, roiEnabled, false)
	}
	if err != nil {
		return err
	}
	s.pending = false
	return nil
}

func (s *Session) awaitFeedback(ctx context.Context, frame int64) error {
	need := ratecontrol.RequiredFeedback(frame-s.base, s.brc.FeedbackLag())
	for s.brc.FeedbackApplied() < need {
		if err := s.collect(ctx, s.brc.FeedbackApplied()+s.base); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) collect(ctx context.Context, frame int64) error {
	f, ok := s.inflight[frame]
	if !ok {
		return brcerrors.NewResourceError(fmt.Sprintf("feedback for frame %d", frame),
			fmt.Errorf("%w: %d", ErrNoHandle, frame))
	}

	wctx, cancel := context.WithTimeout(ctx, s.feedbackTimeout)
	defer cancel()
	stats, err := s.dispatcher.GetFrameStatistics(wctx, f.handle)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %v: %w", ErrFeedbackTimeout, s.feedbackTimeout, err)
		}
		return brcerrors.NewResourceError(fmt.Sprintf("feedback for frame %d", frame), err)
	}
	delete(s.inflight, frame)

	if err := s.brc.ApplyFeedback(ratecontrol.Feedback{
		FrameNumber: frame - s.base,
		Level:       f.level,
		Bits:        stats.BitsProduced,
		AverageQP:   stats.AverageQP,
		PassCount:   stats.PassCount,
	}); err != nil {
		return err
	}
	if s.observe != nil {
		s.observe(frame, stats)
	}
	return nil
}

func (s *Session) drain(ctx context.Context) error {
	for s.brc.FeedbackApplied()+s.base < s.nextFrame {
		if err := s.collect(ctx, s.brc.FeedbackApplied()+s.base); err != nil {
			return err
		}
	}
	return nil
}

// Drain waits for the statistics of every submitted frame.
func (s *Session) Drain(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.failed()
	}
	if err := s.drain(ctx); err != nil {
		return s.fail(err)
	}
	return nil
}

// regionQPs returns the per-LCU QP map and the cost tables for each QP in
// it other than the frame QP.
func (s *Session) regionQPs(desc FrameDescriptor, dec ratecontrol.FrameDecision, rm *ratecontrol.RegionMap) ([]uint8, map[int]costmodel.Tables) {
	qps := make([]uint8, len(rm.DeltaQP))
	var distinct []int
	for i, d := range rm.DeltaQP {
		qp := max(0, min(dec.QP+int(d), costmodel.MaxQP))
		qps[i] = uint8(qp)
		if qp != dec.QP && !slices.Contains(distinct, qp) {
			distinct = append(distinct, qp)
		}
	}
	if len(distinct) == 0 {
		return qps, nil
	}
	costs := make(map[int]costmodel.Tables, len(distinct))
	for _, qp := range distinct {
		costs[qp] = s.costs.Get(desc.SliceType(), qp, desc.Transform)
	}
	return qps, costs
}

// Checkpoint waits for all submitted frames and writes the rate control
// state.
func (s *Session) Checkpoint(ctx context.Context, w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.failed()
	}
	if s.brc.Phase() == ratecontrol.PhaseUninitialized {
		return brcerrors.NewStateError("checkpoint before the first frame", ratecontrol.ErrNotInitialized)
	}
	if err := s.drain(ctx); err != nil {
		return s.fail(err)
	}
	return s.brc.Checkpoint(w)
}

// Resume configures the session from a checkpointed state. Planning
// continues at the frame after the last one in the checkpoint.
func (s *Session) Resume(p StreamParams, st ratecontrol.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.failed()
	}
	if len(s.inflight) > 0 {
		return brcerrors.NewStateError("resume with frames in flight", ErrPendingFrames)
	}
	if st.FeedbackApplied != st.FramesPlanned {
		return brcerrors.NewConfigError("invalid checkpoint",
			fmt.Errorf("%w: %d planned, %d with feedback", ErrPendingFrames, st.FramesPlanned, st.FeedbackApplied))
	}
	if err := s.checkStream(p); err != nil {
		return brcerrors.NewConfigError("invalid stream parameters", fmt.Errorf("%w: %w", ErrStreamParams, err))
	}
	if err := s.brc.Restore(p.RateControl, false, st); err != nil {
		return err
	}
	s.stream = p
	s.configured = true
	s.pending = false
	s.base = 0
	s.nextFrame = st.FramesPlanned
	s.costs.Reset()
	s.slices.Invalidate()

	s.log.Info("session resumed", "next_frame", s.nextFrame, "fullness", st.BufferFullness)
	return nil
}

// Stats summarizes a session.
type Stats struct {
	FramesPlanned    int64   `json:"frames_planned"`
	FeedbackApplied  int64   `json:"feedback_applied"`
	InFlight         int     `json:"in_flight"`
	TargetBits       int64   `json:"target_bits"`
	ActualBits       int64   `json:"actual_bits"`
	BufferFullness   float64 `json:"buffer_fullness"`
	Underflows       int     `json:"underflows"`
	Overflows        int     `json:"overflows"`
	CostCacheHits    int     `json:"cost_cache_hits"`
	CostCacheMisses  int     `json:"cost_cache_misses"`
	SliceMapRebuilds int     `json:"slice_map_rebuilds"`
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.brc.State()
	hits, misses := s.costs.Stats()
	return Stats{
		FramesPlanned:    s.nextFrame,
		FeedbackApplied:  st.FeedbackApplied + s.base,
		InFlight:         len(s.inflight),
		TargetBits:       st.TargetBits,
		ActualBits:       st.ActualBits,
		BufferFullness:   st.BufferFullness,
		Underflows:       st.Underflows,
		Overflows:        st.Overflows,
		CostCacheHits:    hits,
		CostCacheMisses:  misses,
		SliceMapRebuilds: s.slices.Rebuilds(),
	}
}

// RateControlSetup returns the normalized rate control configuration.
func (s *Session) RateControlSetup() ratecontrol.Setup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brc.Setup()
}
