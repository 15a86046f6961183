package cmd

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/azargarov/parfor"
	"github.com/azargarov/parfor/frame"
)

const (
	flagWorkers       = "workers"
	flagActiveCores   = "active-cores"
	flagSingleThread  = "single-thread"
	flagPin           = "pin"
	flagFrames        = "frames"
	flagJobs          = "jobs"
	flagIterations    = "iterations"
	flagChunk         = "chunk"
	flagPriority      = "priority"
	flagFrameInterval = "frame-interval"
	flagMetricsAddr   = "metrics-addr"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run a sha256 frame workload",
	Long: `
Tick a frame loop and, on every frame, submit --jobs parallel-for jobs of
--iterations iterations each. Every iteration hashes --chunk bytes. The
first job of each frame is escalated to priority 0, then the frame waits
for all of its jobs. Finished jobs are swept at the end of the tick.

With --metrics-addr the scheduler counters are served at /metrics for the
duration of the run.
`,
	Args: cobra.NoArgs,
	RunE: runWorkload,
}

func init() {
	f := runCmd.Flags()
	f.Int(flagWorkers, 0, "worker goroutines (0: NumCPU-1)")
	f.Int(flagActiveCores, 0, "cores to keep busy, counting the submitter (0: NumCPU)")
	f.Bool(flagSingleThread, false, "run every job inline on the submitting goroutine")
	f.Bool(flagPin, false, "pin workers to CPUs (linux only)")
	f.Int(flagFrames, 120, "frames to run")
	f.Int(flagJobs, 8, "jobs submitted per frame")
	f.Uint16(flagIterations, 1024, "iterations per job")
	f.Int(flagChunk, 4096, "bytes hashed per iteration")
	f.Uint8(flagPriority, uint8(parfor.PriorityDefault), "priority of submitted jobs")
	f.Duration(flagFrameInterval, 16*time.Millisecond, "frame interval")
	f.String(flagMetricsAddr, "", "serve Prometheus metrics on this address")
}

type runConfig struct {
	opts          parfor.Options
	frames        int
	jobs          int
	iterations    uint16
	chunk         int
	priority      parfor.Priority
	frameInterval time.Duration
	metricsAddr   string
}

func loadRunConfig() (runConfig, error) {
	cfg := runConfig{
		opts: parfor.Options{
			Workers:           v.GetInt(flagWorkers),
			ActiveCores:       v.GetInt(flagActiveCores),
			ForceSingleThread: v.GetBool(flagSingleThread),
			PinWorkers:        v.GetBool(flagPin),
		},
		frames:        v.GetInt(flagFrames),
		jobs:          v.GetInt(flagJobs),
		iterations:    v.GetUint16(flagIterations),
		chunk:         v.GetInt(flagChunk),
		priority:      parfor.Priority(v.GetUint(flagPriority)),
		frameInterval: v.GetDuration(flagFrameInterval),
		metricsAddr:   v.GetString(flagMetricsAddr),
	}
	switch {
	case cfg.frames <= 0:
		return cfg, errors.Newf("--%s must be positive, got %d", flagFrames, cfg.frames)
	case cfg.jobs <= 0:
		return cfg, errors.Newf("--%s must be positive, got %d", flagJobs, cfg.jobs)
	case cfg.chunk <= 0:
		return cfg, errors.Newf("--%s must be positive, got %d", flagChunk, cfg.chunk)
	case cfg.frameInterval <= 0:
		return cfg, errors.Newf("--%s must be positive, got %s", flagFrameInterval, cfg.frameInterval)
	case v.GetUint(flagPriority) > uint(parfor.PriorityLowest):
		return cfg, errors.Newf("--%s must be at most %d", flagPriority, parfor.PriorityLowest)
	}
	return cfg, nil
}

func runWorkload(cmd *cobra.Command, _ []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	logger := lg.FromContext(ctx)

	counters := &parfor.AtomicMetrics{}
	var metrics parfor.MetricsPolicy = counters
	reg := prometheus.NewRegistry()
	if cfg.metricsAddr != "" {
		metrics = teeMetrics{counters, parfor.NewPrometheusMetrics(reg)}
	}
	cfg.opts.Metrics = metrics
	cfg.opts.OnJobError = func(err error) {
		logger.Warn("job error", lg.Any("error", err))
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.metricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", lg.String("addr", cfg.metricsAddr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// The frame loop runs here, so this goroutine is the submitter.
	sched := parfor.New(ctx, cfg.opts)
	loop := frame.New(ctx)
	sched.AttachTo(loop)

	w := newHashWorkload(cfg.jobs, cfg.iterations, cfg.chunk)
	frames := 0
	runCtx, stopFrames := context.WithCancel(gctx)
	defer stopFrames()
	loop.AddUpdateCallback(func() {
		if frames == cfg.frames {
			stopFrames()
			return
		}
		frames++
		w.frame(sched, cfg.priority)
	}, 0)

	start := time.Now()
	err = loop.Run(runCtx, cfg.frameInterval)
	elapsed := time.Since(start)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if serr := sched.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("scheduler shutdown timed out", lg.Any("error", serr))
	}
	cancel()
	if gerr := g.Wait(); gerr != nil && err == nil {
		err = gerr
	}
	if err != nil {
		return err
	}

	iterations := counters.Completed()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scheduler %s: %d workers, %d frames in %s\n",
		sched.ID(), sched.NumWorkers(), frames, elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "  %s iterations, %s hashed, %s iterations/s\n",
		humanize.Comma(iterations),
		humanize.IBytes(uint64(iterations)*uint64(cfg.chunk)),
		humanize.SIWithDigits(float64(iterations)/elapsed.Seconds(), 2, ""),
	)
	fmt.Fprintf(out, "  %s jobs, %s steals, %s recycled, %d panics\n",
		humanize.Comma(int64(counters.Submitted())),
		humanize.Comma(int64(counters.Stolen())),
		humanize.Comma(int64(counters.Recycled())),
		counters.Panicked(),
	)
	if s := parfor.StatSnapshot(); s != "" {
		fmt.Fprintf(out, "  %s\n", s)
	}
	return nil
}

// hashWorkload hashes a fixed buffer in chunks, one chunk per iteration.
// Every job of a frame writes its own digest slice.
type hashWorkload struct {
	data       []byte
	chunk      int
	iterations uint16
	jobs       []hashJob
	handles    []parfor.JobHandle
}

type hashJob struct {
	w       *hashWorkload
	digests [][sha256.Size]byte
}

func (j *hashJob) hash(i int) {
	c := j.w.chunk
	j.digests[i] = sha256.Sum256(j.w.data[i*c : (i+1)*c])
}

func newHashWorkload(jobs int, iterations uint16, chunk int) *hashWorkload {
	data := make([]byte, int(iterations)*chunk)
	for i := range data {
		data[i] = byte(i * 31)
	}
	w := &hashWorkload{
		data:       data,
		chunk:      chunk,
		iterations: iterations,
		jobs:       make([]hashJob, jobs),
		handles:    make([]parfor.JobHandle, 0, jobs),
	}
	for i := range w.jobs {
		w.jobs[i] = hashJob{w: w, digests: make([][sha256.Size]byte, iterations)}
	}
	return w
}

func (w *hashWorkload) frame(s *parfor.Scheduler, prio parfor.Priority) {
	w.handles = w.handles[:0]
	for i := range w.jobs {
		w.handles = append(w.handles, s.Submit(w.jobs[i].hash, w.iterations, prio))
	}
	// Inline runs (--single-thread) hand back empty handles.
	if !w.handles[0].Valid() {
		return
	}
	w.handles[0].ChangePriority(parfor.PriorityUrgent)
	for _, h := range w.handles {
		h.WaitForFinish()
	}
}

// teeMetrics forwards every update to each policy.
type teeMetrics []parfor.MetricsPolicy

func (t teeMetrics) IncSubmitted() {
	for _, m := range t {
		m.IncSubmitted()
	}
}

func (t teeMetrics) AddCompleted(n int64) {
	for _, m := range t {
		m.AddCompleted(n)
	}
}

func (t teeMetrics) IncStolen() {
	for _, m := range t {
		m.IncStolen()
	}
}

func (t teeMetrics) IncRecycled() {
	for _, m := range t {
		m.IncRecycled()
	}
}

func (t teeMetrics) IncPanicked() {
	for _, m := range t {
		m.IncPanicked()
	}
}

func (t teeMetrics) SetLiveJobs(n int) {
	for _, m := range t {
		m.SetLiveJobs(n)
	}
}
