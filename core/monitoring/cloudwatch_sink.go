package monitoring

import (
	"context"
	"sort"
	"sync"

	"finetune-launcher/core/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// PutMetricData accepts at most 20 datums per call.
const cloudWatchBatchSize = 20

// cloudWatchAPI is the slice of the CloudWatch client the sink uses.
type cloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchSink forwards metric events to the platform metrics endpoint in
// batches, preserving emission order within and across batches.
type CloudWatchSink struct {
	client    cloudWatchAPI
	namespace string
	jobName   string

	mu    sync.Mutex
	batch []types.MetricDatum
}

// NewCloudWatchSink creates a sink backed by the real CloudWatch client.
func NewCloudWatchSink(ctx context.Context, region, namespace, jobName string) (*CloudWatchSink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewCloudWatchSinkWithClient(cloudwatch.NewFromConfig(cfg), namespace, jobName), nil
}

// NewCloudWatchSinkWithClient creates a sink with an injected client.
func NewCloudWatchSinkWithClient(client cloudWatchAPI, namespace, jobName string) *CloudWatchSink {
	return &CloudWatchSink{
		client:    client,
		namespace: namespace,
		jobName:   jobName,
	}
}

// Name implements MetricSink.
func (s *CloudWatchSink) Name() string { return "cloudwatch" }

// Publish buffers one datum per named field and flushes full batches.
func (s *CloudWatchSink) Publish(ctx context.Context, event models.MetricEvent) error {
	s.mu.Lock()
	for _, name := range sortedFieldNames(event.Fields) {
		ts := event.Timestamp
		s.batch = append(s.batch, types.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(event.Fields[name]),
			Timestamp:  aws.Time(ts),
			Unit:       types.StandardUnitNone,
			Dimensions: []types.Dimension{
				{
					Name:  aws.String("TrainingJobName"),
					Value: aws.String(s.jobName),
				},
			},
		})
	}
	s.mu.Unlock()

	return s.flushFull(ctx)
}

// Flush sends any buffered datums.
func (s *CloudWatchSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := s.batch
	s.batch = nil
	s.mu.Unlock()

	return s.send(ctx, pending)
}

// flushFull sends complete batches, keeping the remainder buffered.
func (s *CloudWatchSink) flushFull(ctx context.Context) error {
	s.mu.Lock()
	var full []types.MetricDatum
	for len(s.batch) >= cloudWatchBatchSize {
		full = append(full, s.batch[:cloudWatchBatchSize]...)
		s.batch = s.batch[cloudWatchBatchSize:]
	}
	s.mu.Unlock()

	return s.send(ctx, full)
}

func (s *CloudWatchSink) send(ctx context.Context, datums []types.MetricDatum) error {
	for start := 0; start < len(datums); start += cloudWatchBatchSize {
		end := start + cloudWatchBatchSize
		if end > len(datums) {
			end = len(datums)
		}
		_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(s.namespace),
			MetricData: datums[start:end],
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func sortedFieldNames(fields map[string]float64) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	// Deterministic datum order within one event.
	sort.Strings(names)
	return names
}
