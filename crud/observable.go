package crud

import (
	"context"
	"time"

	"github.com/hatlonely/crudx/cfg/def"
	"github.com/hatlonely/crudx/log"
	"github.com/hatlonely/crudx/ref"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservableOptions struct {
	// Name 指标名前缀，同时作为日志 component 字段和 span 的 component 属性
	Name string `cfg:"name" def:"crud" validate:"required"`

	Logger *ref.TypeOptions `cfg:"logger"`

	EnableMetrics bool `cfg:"enableMetrics" def:"true"`
	EnableLogging bool `cfg:"enableLogging" def:"true"`
	EnableTracing bool `cfg:"enableTracing" def:"false"`

	// Registerer 为空时注册到 prometheus.DefaultRegisterer
	Registerer prometheus.Registerer `cfg:"-"`
}

type observableMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	active     *prometheus.GaugeVec
	batchSize  *prometheus.HistogramVec
}

func newObservableMetrics(name string, registerer prometheus.Registerer) (*observableMetrics, error) {
	m := &observableMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name + "_operations_total",
			Help: "Total number of repository operations",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name + "_operation_duration_seconds",
			Help:    "Duration of repository operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"operation"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: name + "_active_operations",
			Help: "Number of in-flight repository operations",
		}, []string{"operation"}),
		batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name + "_batch_size",
			Help:    "Number of rows passed to batch operations",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
		}, []string{"operation"}),
	}

	var err error
	if m.operations, err = register(registerer, m.operations); err != nil {
		return nil, err
	}
	if m.duration, err = register(registerer, m.duration); err != nil {
		return nil, err
	}
	if m.active, err = register(registerer, m.active); err != nil {
		return nil, err
	}
	if m.batchSize, err = register(registerer, m.batchSize); err != nil {
		return nil, err
	}
	return m, nil
}

// register 同名指标已注册时复用已有的 collector
func register[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "register metrics failed")
	}
	return c, nil
}

// ObservableRepository 为任意 Crud 实现添加指标、日志和追踪，错误原样返回
type ObservableRepository[E, I, U any, K comparable] struct {
	inner Crud[E, I, U, K]

	name    string
	logger  log.Logger
	metrics *observableMetrics
	tracer  trace.Tracer
}

var _ Crud[struct{}, struct{}, struct{}, int64] = (*ObservableRepository[struct{}, struct{}, struct{}, int64])(nil)

func NewObservableRepository[E, I, U any, K comparable](inner Crud[E, I, U, K], options *ObservableOptions) (*ObservableRepository[E, I, U, K], error) {
	if inner == nil {
		return nil, errors.New("inner repository is nil")
	}
	o := ObservableOptions{}
	if options != nil {
		o = *options
	} else if err := def.SetDefaults(&o); err != nil {
		return nil, err
	}
	if o.Name == "" {
		o.Name = "crud"
	}

	obs := &ObservableRepository[E, I, U, K]{inner: inner, name: o.Name}

	if o.EnableLogging {
		l, err := log.NewLoggerWithOptions(o.Logger)
		if err != nil {
			return nil, errors.WithMessage(err, "create logger failed")
		}
		obs.logger = l.WithGroup("repository")
	}

	if o.EnableMetrics {
		registerer := o.Registerer
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		m, err := newObservableMetrics(o.Name, registerer)
		if err != nil {
			return nil, err
		}
		obs.metrics = m
	}

	if o.EnableTracing {
		obs.tracer = otel.Tracer("crud." + o.Name)
	}

	return obs, nil
}

// observe batchSize 小于 0 表示非批量操作
func (obs *ObservableRepository[E, I, U, K]) observe(ctx context.Context, operation string, batchSize int, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if obs.tracer != nil {
		attrs := []attribute.KeyValue{
			attribute.String("component", obs.name),
			attribute.String("operation", operation),
		}
		if batchSize >= 0 {
			attrs = append(attrs, attribute.Int("batch_size", batchSize))
		}
		ctx, span = obs.tracer.Start(ctx, "crud."+operation, trace.WithAttributes(attrs...))
		defer span.End()
	}

	if obs.metrics != nil {
		if batchSize >= 0 {
			obs.metrics.batchSize.WithLabelValues(operation).Observe(float64(batchSize))
		}
		obs.metrics.active.WithLabelValues(operation).Inc()
		defer obs.metrics.active.WithLabelValues(operation).Dec()
	}

	err := fn(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = errorKind(err).String()
	}

	if span != nil {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()), attribute.String("status", status))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.metrics != nil {
		obs.metrics.operations.WithLabelValues(operation, status).Inc()
		obs.metrics.duration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	if obs.logger != nil {
		// NotFound 是正常的业务结果
		switch status {
		case "success", KindNotFound.String():
			obs.logger.InfoContext(ctx, "repository operation completed",
				"component", obs.name, "operation", operation, "status", status, "duration_ms", duration.Milliseconds())
		default:
			obs.logger.ErrorContext(ctx, "repository operation failed",
				"component", obs.name, "operation", operation, "status", status, "duration_ms", duration.Milliseconds(),
				"error", err.Error())
		}
	}

	return err
}

func errorKind(err error) ErrorKind {
	var ce *CrudError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindOther
}

func (obs *ObservableRepository[E, I, U, K]) Create(ctx context.Context, payload I) (E, error) {
	var e E
	err := obs.observe(ctx, "create", -1, func(ctx context.Context) error {
		var err error
		e, err = obs.inner.Create(ctx, payload)
		return err
	})
	return e, err
}

func (obs *ObservableRepository[E, I, U, K]) CreateMany(ctx context.Context, payloads []I) ([]E, error) {
	var es []E
	err := obs.observe(ctx, "create_many", len(payloads), func(ctx context.Context) error {
		var err error
		es, err = obs.inner.CreateMany(ctx, payloads)
		return err
	})
	return es, err
}

func (obs *ObservableRepository[E, I, U, K]) Read(ctx context.Context, pk K) (E, error) {
	var e E
	err := obs.observe(ctx, "read", -1, func(ctx context.Context) error {
		var err error
		e, err = obs.inner.Read(ctx, pk)
		return err
	})
	return e, err
}

func (obs *ObservableRepository[E, I, U, K]) Update(ctx context.Context, pk K, changeset U) (int64, error) {
	var n int64
	err := obs.observe(ctx, "update", -1, func(ctx context.Context) error {
		var err error
		n, err = obs.inner.Update(ctx, pk, changeset)
		return err
	})
	return n, err
}

func (obs *ObservableRepository[E, I, U, K]) UpdateAll(ctx context.Context, changeset U) (int64, error) {
	var n int64
	err := obs.observe(ctx, "update_all", -1, func(ctx context.Context) error {
		var err error
		n, err = obs.inner.UpdateAll(ctx, changeset)
		return err
	})
	return n, err
}

func (obs *ObservableRepository[E, I, U, K]) Delete(ctx context.Context, pk K) (int64, error) {
	var n int64
	err := obs.observe(ctx, "delete", -1, func(ctx context.Context) error {
		var err error
		n, err = obs.inner.Delete(ctx, pk)
		return err
	})
	return n, err
}

func (obs *ObservableRepository[E, I, U, K]) List(ctx context.Context) ([]E, error) {
	var es []E
	err := obs.observe(ctx, "list", -1, func(ctx context.Context) error {
		var err error
		es, err = obs.inner.List(ctx)
		return err
	})
	return es, err
}
