// Package metrics provides a lightweight CloudWatch Embedded Metrics Format
// (EMF) utility for emitting custom metrics. EMF metrics are written as
// structured JSON to stdout, where any log shipper that understands the
// format can extract them — no API calls, no added latency.
//
// See: https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/CloudWatch_Embedded_Metric_Format_Specification.html
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Standard metric units.
const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
	UnitBytes        = "Bytes"
	UnitNone         = "None"
)

// metricDef holds the name and unit for a single metric.
type metricDef struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

// emfDirective is the _aws metadata block required by EMF.
type emfDirective struct {
	Timestamp         int64      `json:"Timestamp"`
	CloudWatchMetrics []cwMetric `json:"CloudWatchMetrics"`
}

// cwMetric defines a metric namespace, dimensions, and metric definitions.
type cwMetric struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []metricDef `json:"Metrics"`
}

// Recorder accumulates dimensions, metrics, and properties for a single EMF flush.
// It is NOT safe for concurrent use from multiple goroutines; create one per operation.
type Recorder struct {
	namespace  string
	dimensions map[string]string
	metrics    map[string]metricDef
	values     map[string]interface{}
	properties map[string]interface{}
}

var (
	// serviceName is cached from FACE_SERVICE_NAME at init time.
	serviceName string
	initOnce    sync.Once
)

func initServiceName() {
	serviceName = os.Getenv("FACE_SERVICE_NAME")
	if serviceName == "" {
		serviceName = "face-web"
	}
}

// New creates a new EMF Recorder with the given namespace.
// It automatically adds the ServiceName dimension.
func New(namespace string) *Recorder {
	initOnce.Do(initServiceName)
	r := &Recorder{
		namespace:  namespace,
		dimensions: make(map[string]string),
		metrics:    make(map[string]metricDef),
		values:     make(map[string]interface{}),
		properties: make(map[string]interface{}),
	}
	r.dimensions["ServiceName"] = serviceName
	return r
}

// Dimension adds a dimension to the metric set. Dimensions become part of the
// metric identity; keep cardinality low.
func (r *Recorder) Dimension(name, value string) *Recorder {
	r.dimensions[name] = value
	return r
}

// Metric records a value for the named metric with the given unit.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	r.metrics[name] = metricDef{Name: name, Unit: unit}
	r.values[name] = value
	return r
}

// Count records a count-of-one metric, the common case for result counters.
func (r *Recorder) Count(name string) *Recorder {
	return r.Metric(name, 1, UnitCount)
}

// Property attaches a non-metric property to the log event. Properties are
// searchable in logs but are not extracted as metrics.
func (r *Recorder) Property(name string, value interface{}) *Recorder {
	r.properties[name] = value
	return r
}

// Flush serializes the accumulated metrics as an EMF JSON document and writes
// it to stdout. The Recorder must not be reused after Flush.
func (r *Recorder) Flush() {
	if len(r.metrics) == 0 {
		return
	}

	dimNames := make([]string, 0, len(r.dimensions))
	for name := range r.dimensions {
		dimNames = append(dimNames, name)
	}

	defs := make([]metricDef, 0, len(r.metrics))
	for _, def := range r.metrics {
		defs = append(defs, def)
	}

	doc := make(map[string]interface{}, len(r.dimensions)+len(r.values)+len(r.properties)+1)
	doc["_aws"] = emfDirective{
		Timestamp: time.Now().UnixMilli(),
		CloudWatchMetrics: []cwMetric{{
			Namespace:  r.namespace,
			Dimensions: [][]string{dimNames},
			Metrics:    defs,
		}},
	}
	for k, v := range r.dimensions {
		doc[k] = v
	}
	for k, v := range r.values {
		doc[k] = v
	}
	for k, v := range r.properties {
		doc[k] = v
	}

	out, err := json.Marshal(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics: failed to marshal EMF document: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
