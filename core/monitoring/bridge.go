package monitoring

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"finetune-launcher/core/models"
)

// MetricSink accepts metric events for an external observability system.
// Delivery failure never affects training correctness: callers log and
// continue.
type MetricSink interface {
	Name() string
	Publish(ctx context.Context, event models.MetricEvent) error
	Flush(ctx context.Context) error
}

// Bridge parses structured progress records out of the training process
// output stream and fans each event out, in emission order, to every
// registered sink. Lines that are not progress records are echoed to the
// launcher log unmodified.
type Bridge struct {
	sinks    []MetricSink
	observer func(models.MetricEvent)
	now      func() time.Time
}

// NewBridge creates a new metric bridge
func NewBridge(sinks ...MetricSink) *Bridge {
	return &Bridge{
		sinks: sinks,
		now:   time.Now,
	}
}

// SetObserver registers a callback invoked for every parsed event before
// sink delivery. The supervisor uses it for liveness tracking.
func (b *Bridge) SetObserver(fn func(models.MetricEvent)) {
	b.observer = fn
}

// HandleLine processes one line of training process output.
func (b *Bridge) HandleLine(ctx context.Context, line string) {
	event, ok := ParseLine(line)
	if !ok {
		log.Printf("[train] %s", line)
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}

	if b.observer != nil {
		b.observer(event)
	}

	for _, sink := range b.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			log.Printf("Metric delivery to %s failed (ignored): %v", sink.Name(), err)
		}
	}
}

// Flush flushes all sinks. Failures are logged and ignored.
func (b *Bridge) Flush(ctx context.Context) {
	for _, sink := range b.sinks {
		if err := sink.Flush(ctx); err != nil {
			log.Printf("Metric flush to %s failed (ignored): %v", sink.Name(), err)
		}
	}
}

// Training progress appears in one of two shapes:
//
//	{"step": 12, "loss": 1.93, "lr": 6e-05}
//	step: 000012 - loss: 1.93 - lr: 6.0e-05
var (
	textStepPattern  = regexp.MustCompile(`\bstep:?\s*0*(\d+)\b`)
	textFieldPattern = regexp.MustCompile(`\b([a-z][a-z_]*):\s*(-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?)\b`)
)

// ParseLine attempts to parse one output line as a progress record.
func ParseLine(line string) (models.MetricEvent, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return models.MetricEvent{}, false
	}
	if strings.HasPrefix(trimmed, "{") {
		return parseJSONLine(trimmed)
	}
	return parseTextLine(trimmed)
}

func parseJSONLine(line string) (models.MetricEvent, bool) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	var generic map[string]interface{}
	if err := dec.Decode(&generic); err != nil {
		return models.MetricEvent{}, false
	}

	event := models.MetricEvent{Fields: map[string]float64{}}
	haveStep := false
	for key, value := range generic {
		num, ok := value.(json.Number)
		if !ok {
			continue
		}
		if key == "step" {
			step, err := num.Int64()
			if err != nil {
				return models.MetricEvent{}, false
			}
			event.Step = step
			haveStep = true
			continue
		}
		if f, err := num.Float64(); err == nil {
			event.Fields[key] = f
		}
	}
	if !haveStep {
		return models.MetricEvent{}, false
	}
	return event, true
}

func parseTextLine(line string) (models.MetricEvent, bool) {
	stepMatch := textStepPattern.FindStringSubmatch(line)
	if stepMatch == nil {
		return models.MetricEvent{}, false
	}
	step, err := strconv.ParseInt(stepMatch[1], 10, 64)
	if err != nil {
		return models.MetricEvent{}, false
	}

	event := models.MetricEvent{Step: step, Fields: map[string]float64{}}
	for _, match := range textFieldPattern.FindAllStringSubmatch(line, -1) {
		if match[1] == "step" {
			continue
		}
		if value, err := strconv.ParseFloat(match[2], 64); err == nil {
			event.Fields[match[1]] = value
		}
	}
	if len(event.Fields) == 0 {
		return models.MetricEvent{}, false
	}
	return event, true
}
