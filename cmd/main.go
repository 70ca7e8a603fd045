package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/sowilo/featureflag"
	sowilohttp "github.com/aukilabs/sowilo/http"
	"github.com/aukilabs/sowilo/scene"
	"github.com/aukilabs/sowilo/selection"
	"github.com/aukilabs/sowilo/spatial"
	"github.com/golang/geo/s1"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
)

var (
	// The Sowilo version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "sowilo_info",
		Help:        "Sowilo information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	AdminAddr     string          `cli:""        env:"SOWILO_ADMIN_ADDR"      help:"Admin listening address."`
	LogLevel      string          `cli:""        env:"SOWILO_LOG_LEVEL"       help:"Log level (debug|info|warning|error)."`
	LogIndent     bool            `cli:""        env:"SOWILO_LOG_INDENT"      help:"Indent logs."`
	LayoutFile    string          `cli:""        env:"SOWILO_LAYOUT_FILE"     help:"The room layout to load."`
	TraceFile     string          `cli:""        env:"SOWILO_TRACE_FILE"      help:"The gaze trace to replay."`
	RecordFile    string          `cli:""        env:"SOWILO_RECORD_FILE"     help:"The file where hover records of the replayed trace are written."`
	Index         string          `cli:""        env:"SOWILO_INDEX"           help:"The spatial index (octree|grid)."`
	FrameDuration time.Duration   `cli:",hidden" env:"SOWILO_FRAME_DURATION"  help:"The duration of a scene frame."`
	Octree        octreeConfig    `cli:",hidden" env:"-"                      help:"Octree configuration."`
	Grid          gridConfig      `cli:",hidden" env:"-"                      help:"Grid configuration."`
	Selection     selectionConfig `cli:""        env:"-"                      help:"Selection configuration."`
	Events        eventsConfig    `cli:",hidden" env:"-"                      help:"Event pusher configuration."`
	FeatureFlags  []string        `cli:",hidden" env:"SOWILO_FEATURE_FLAGS"   help:"Comma separated feature flags"`
	Version       bool            `cli:""        env:"-"                      help:"Show version."`
	Help          bool            `cli:""        env:"-"                      help:"Show help."`
}

type octreeConfig struct {
	WorldSize    float64 `cli:",hidden" env:"SOWILO_OCTREE_WORLD_SIZE"    help:"The initial edge length of the octree root. Grown to fit the layout."`
	MinNodeSize  float64 `cli:",hidden" env:"SOWILO_OCTREE_MIN_NODE_SIZE" help:"The edge length below which nodes are not split."`
	Looseness    float64 `cli:",hidden" env:"SOWILO_OCTREE_LOOSENESS"     help:"The node looseness factor, between 1 and 2."`
	NodeCapacity int     `cli:",hidden" env:"SOWILO_OCTREE_NODE_CAPACITY" help:"The number of objects a node holds before splitting."`
}

type gridConfig struct {
	CellSize float64 `cli:",hidden" env:"SOWILO_GRID_CELL_SIZE" help:"The edge length of a grid cell."`
}

type selectionConfig struct {
	Strategy     string  `cli:"" env:"SOWILO_SELECTION_STRATEGY"      help:"The selection strategy (presence|volume-in-cone|alignment)."`
	HalfAngle    float64 `cli:"" env:"SOWILO_SELECTION_HALF_ANGLE"    help:"The half angle of the view cone, in degrees. 0 selects along a ray."`
	MaxDistance  float64 `cli:"" env:"SOWILO_SELECTION_MAX_DISTANCE"  help:"The maximum distance of selectable objects."`
	SearchRadius float64 `cli:"" env:"SOWILO_SELECTION_SEARCH_RADIUS" help:"The radius of the coarse index query. Defaults to the max distance."`
	MinDot       float64 `cli:"" env:"SOWILO_SELECTION_MIN_DOT"       help:"The minimum alignment of the alignment strategy, between -1 and 1."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"SOWILO_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"SOWILO_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"SOWILO_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"SOWILO_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

type hoverRecord struct {
	ID        scene.ObjectID `json:"id"`
	Name      string         `json:"name"`
	Selected  bool           `json:"selected"`
	Timestamp float64        `json:"timestamp"`
}

func main() {
	conf := config{
		AdminAddr:     ":18190",
		LogLevel:      logs.InfoLevel.String(),
		Index:         "octree",
		FrameDuration: time.Millisecond * 15,
		Octree: octreeConfig{
			WorldSize:    scene.DefaultWorldSize,
			MinNodeSize:  spatial.DefaultMinNodeSize,
			Looseness:    spatial.DefaultLooseness,
			NodeCapacity: spatial.DefaultNodeCapacity,
		},
		Grid: gridConfig{
			CellSize: spatial.DefaultCellSize,
		},
		Selection: selectionConfig{
			Strategy:    selection.StrategyPresence,
			HalfAngle:   15,
			MaxDistance: 15,
			MinDot:      selection.DefaultMinDot,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts Sowilo, a spatial index and gaze selection server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "sowilo",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)

	var layout scene.Layout
	if conf.LayoutFile != "" {
		l, err := loadLayout(conf.LayoutFile)
		if err != nil {
			logs.Fatal(err)
		}
		layout = l
	}

	sc := scene.New(newIndex(conf, featureFlags, layout), conf.FrameDuration)
	defer sc.Close()
	go sc.StartDispatchFrames()

	var ready atomic.Bool
	ids := sc.Load(layout)
	ready.Store(true)

	logs.WithTag("scene", sc.ID).
		WithTag("index", conf.Index).
		WithTag("objects", len(ids)).
		WithTag("skipped", len(layout.Objects)-len(ids)).
		Info("scene loaded")

	var wg sync.WaitGroup
	if conf.TraceFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := replay(ctx, conf, featureFlags, sc); err != nil && err != context.Canceled {
				logs.Warn(errors.New("replaying trace failed").
					WithTag("trace_file", conf.TraceFile).
					Wrap(err))
			}
		}()
	}

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", sowilohttp.HandleHealthCheck)
	admin.HandleFunc("/ready", sowilohttp.HandleReadyCheck(ready.Load))
	admin.Handle("/version", sowilohttp.HandleWithCORS(sowilohttp.HandleVersion(version)))
	featureFlags.IfNotSet(featureflag.FlagDisableDebugIndex, func() {
		admin.Handle("/debug/index", sowilohttp.HandleWithCORS(sowilohttp.HandleDebugIndex(sc.DebugInfo)))
		admin.Handle("/debug/objects", sowilohttp.HandleWithCORS(sowilohttp.HandleJSON(func() any {
			return objectInfos(sc)
		})))
	})
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("admin_addr", conf.AdminAddr).
		WithTag("feature_flags", conf.FeatureFlags).
		Info("starting sowilo server")

	sowilohttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.AdminAddr, Handler: metrics.HTTPHandler(&admin,
			sowilohttp.MetricsPathFormatter)},
	)

	wg.Wait()
}

func newIndex(conf config, featureFlags featureflag.FeatureFlag, layout scene.Layout) spatial.Index[scene.ObjectID] {
	if conf.Index == "grid" {
		return spatial.NewGrid[scene.ObjectID](conf.Grid.CellSize)
	}

	opts := spatial.OctreeOptions{
		WorldSize:    conf.Octree.WorldSize,
		MinNodeSize:  conf.Octree.MinNodeSize,
		Looseness:    conf.Octree.Looseness,
		NodeCapacity: conf.Octree.NodeCapacity,
	}
	if size := layout.WorldSize(); size > opts.WorldSize {
		opts.WorldSize = size
	}
	featureFlags.IfSet(featureflag.FlagDisableInPlaceUpdate, func() {
		opts.DisableInPlaceUpdate = true
	})
	featureFlags.IfSet(featureflag.FlagDisableRootShrink, func() {
		opts.DisableShrink = true
	})
	return spatial.NewOctree[scene.ObjectID](opts)
}

func newStrategy(conf selectionConfig) selection.Strategy {
	strategy, _ := selection.StrategyFromName(conf.Strategy)
	if alignment, ok := strategy.(selection.Alignment); ok {
		alignment.MinDot = conf.MinDot
		strategy = alignment
	}
	return strategy
}

func baseQuery(conf selectionConfig) selection.Query {
	q := selection.Query{
		HalfAngle:    s1.Angle(conf.HalfAngle) * s1.Degree,
		MaxDistance:  conf.MaxDistance,
		SearchRadius: conf.SearchRadius,
	}
	if conf.HalfAngle == 0 {
		q.Aim = selection.AimCenter
	}
	return q
}

func loadLayout(filename string) (scene.Layout, error) {
	f, err := os.Open(filename)
	if err != nil {
		return scene.Layout{}, errors.New("opening layout file failed").
			WithTag("layout_file", filename).
			Wrap(err)
	}
	defer f.Close()

	l, err := scene.DecodeLayout(f)
	if err != nil {
		return scene.Layout{}, errors.New("loading layout failed").
			WithTag("layout_file", filename).
			Wrap(err)
	}
	return l, nil
}

func replay(ctx context.Context, conf config, featureFlags featureflag.FeatureFlag, sc *scene.Scene) error {
	f, err := os.Open(conf.TraceFile)
	if err != nil {
		return errors.New("opening trace file failed").Wrap(err)
	}
	trace, err := selection.DecodeTrace(f)
	f.Close()
	if err != nil {
		return err
	}

	sel := sc.NewSelector(newStrategy(conf.Selection))
	sel.OnChange(selection.Highlight[scene.ObjectID](logHighlighter{scene: sc}))

	records, err := sc.Replay(ctx, trace, sel, baseQuery(conf.Selection))
	if err != nil {
		return err
	}

	logs.WithTag("trace_file", conf.TraceFile).
		WithTag("records", len(records)).
		Info("trace replayed")

	if conf.RecordFile == "" {
		return nil
	}

	var write bool
	featureFlags.IfNotSet(featureflag.FlagDisableHoverRecords, func() {
		write = true
	})
	if !write {
		return nil
	}

	named := make([]hoverRecord, len(records))
	for i, r := range records {
		named[i] = hoverRecord{
			ID:        r.Object,
			Name:      objectName(sc, r.Object),
			Selected:  r.Selected,
			Timestamp: r.Timestamp,
		}
	}

	b, err := json.MarshalIndent(named, "", "  ")
	if err != nil {
		return errors.New("encoding hover records failed").Wrap(err)
	}
	if err := os.WriteFile(conf.RecordFile, b, 0o644); err != nil {
		return errors.New("writing hover records failed").
			WithTag("record_file", conf.RecordFile).
			Wrap(err)
	}
	return nil
}

// logHighlighter reports highlight changes in the logs, standing in for a
// renderer outlining the selected object.
type logHighlighter struct {
	scene *scene.Scene
}

func (h logHighlighter) Highlight(id scene.ObjectID) {
	logs.WithTag("id", id).
		WithTag("name", objectName(h.scene, id)).
		Info("object highlighted")
}

func (h logHighlighter) Unhighlight(id scene.ObjectID) {
	logs.WithTag("id", id).
		WithTag("name", objectName(h.scene, id)).
		Debug("object unhighlighted")
}

type objectInfo struct {
	ID       scene.ObjectID `json:"id"`
	Name     string         `json:"name"`
	Category string         `json:"category,omitempty"`
	Color    string         `json:"color,omitempty"`
	Position spatial.Vec3   `json:"position"`
	Rotation spatial.Vec3   `json:"rotation"`
	Size     spatial.Vec3   `json:"size"`
}

func objectInfos(sc *scene.Scene) []objectInfo {
	objects := sc.Objects()
	infos := make([]objectInfo, len(objects))
	for i, o := range objects {
		t := o.Transform()
		infos[i] = objectInfo{
			ID:       o.ID,
			Name:     o.Name,
			Category: o.Category,
			Color:    o.Color,
			Position: spatial.Vec3From(t.Position),
			Rotation: spatial.Vec3From(t.Rotation),
			Size:     spatial.Vec3From(t.Size),
		}
	}
	return infos
}

func objectName(sc *scene.Scene, id scene.ObjectID) string {
	if o, ok := sc.Object(id); ok {
		return o.Name
	}
	return ""
}

func validateConfig(conf config) error {
	if conf.Index != "octree" && conf.Index != "grid" {
		return errors.New("invalid index").
			WithTag("index", conf.Index)
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if _, ok := selection.StrategyFromName(conf.Selection.Strategy); !ok {
		return errors.New("invalid selection strategy").
			WithTag("strategy", conf.Selection.Strategy)
	}

	if conf.Selection.HalfAngle < 0 || conf.Selection.HalfAngle > 180 {
		return errors.New("selection half angle must be between 0 and 180 degrees").
			WithTag("half_angle", conf.Selection.HalfAngle)
	}

	if conf.Selection.HalfAngle == 0 && conf.Selection.Strategy != selection.StrategyAlignment {
		return errors.New("a zero half angle requires the alignment strategy").
			WithTag("strategy", conf.Selection.Strategy)
	}

	if conf.Selection.MaxDistance < 0 {
		return errors.New("selection max distance must not be negative").
			WithTag("max_distance", conf.Selection.MaxDistance)
	}

	if conf.Selection.MinDot < -1 || conf.Selection.MinDot > 1 {
		return errors.New("selection min dot must be between -1 and 1").
			WithTag("min_dot", conf.Selection.MinDot)
	}

	if conf.RecordFile != "" && conf.TraceFile == "" {
		return errors.New("a record file requires a trace file")
	}

	return nil
}
